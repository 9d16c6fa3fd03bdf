package mailbox

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/ports"
	"go.uber.org/zap"
)

const defaultPageSize = 50

type entry struct {
	msg       core.Message
	tags      map[string]struct{}
	processed bool
	received  time.Time
	seq       uint64
}

// Store is an in-memory mailbox. It implements ports.MailConnector so the
// scan controller can pull from messages delivered to the SMTP listener.
// Processed messages older than the retention window are pruned.
type Store struct {
	mu             sync.RWMutex
	entries        map[string]*entry
	order          []string
	lastSeq        uint64
	tags           map[string]struct{}
	processedLabel string
	retention      time.Duration
	cleanupFreq    time.Duration
	logger         *zap.Logger
	now            func() time.Time
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewStore creates an empty mailbox. processedLabel is the tag added by
// MarkProcessed. A non-positive cleanupFreq disables the cleanup task and a
// non-positive retention keeps every message.
func NewStore(processedLabel string, retention, cleanupFreq time.Duration, logger *zap.Logger) *Store {
	s := &Store{
		entries:        make(map[string]*entry),
		tags:           make(map[string]struct{}),
		processedLabel: processedLabel,
		retention:      retention,
		cleanupFreq:    cleanupFreq,
		logger:         logger,
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}

	if cleanupFreq > 0 && retention > 0 {
		go s.startCleanupTask()
	}

	return s
}

// Add stores a parsed message under a new id and returns the id
func (s *Store) Add(msg *core.Message) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeq++
	e := &entry{msg: *msg, tags: make(map[string]struct{}), received: s.now(), seq: s.lastSeq}
	e.msg.ID = id
	for _, t := range msg.Tags {
		e.tags[t] = struct{}{}
	}
	e.msg.Tags = nil

	s.entries[id] = e
	s.order = append(s.order, id)
	return id
}

// AddRaw parses a raw RFC 5322 message and stores it
func (s *Store) AddRaw(raw []byte) (string, error) {
	msg, err := ParseMessage(raw)
	if err != nil {
		return "", err
	}
	return s.Add(msg), nil
}

// Len returns the number of stored messages
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// ListCandidates pages through stored messages, oldest first. With
// UnreadOnly set, messages already marked processed are left out. Query
// terms are matched case-insensitively against sender and subject. The page
// token is the arrival sequence of the last id returned, so marking or
// pruning messages between pages does not shift later pages.
func (s *Store) ListCandidates(_ context.Context, filter ports.Filter, pageToken string) ([]string, string, error) {
	var after uint64
	if pageToken != "" {
		n, err := strconv.ParseUint(pageToken, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token %q", pageToken)
		}
		after = n
	}

	size := filter.PageSize
	if size <= 0 {
		size = defaultPageSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.order), func(i int) bool {
		return s.entries[s.order[i]].seq > after
	})

	var page []string
	var last uint64
	for _, id := range s.order[start:] {
		e := s.entries[id]
		if filter.UnreadOnly && e.processed {
			continue
		}
		if !matchesQuery(e, filter.Query) {
			continue
		}
		if len(page) == size {
			return page, strconv.FormatUint(last, 10), nil
		}
		page = append(page, id)
		last = e.seq
	}
	return page, "", nil
}

// matchesQuery keeps plain words from the query and ignores provider
// operators such as "category:primary"
func matchesQuery(e *entry, query string) bool {
	haystack := strings.ToLower(e.msg.Sender + " " + e.msg.Subject)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(term, ":") || strings.HasPrefix(term, "-") {
			continue
		}
		if !strings.Contains(haystack, strings.Trim(term, `"()`)) {
			return false
		}
	}
	return true
}

// Fetch returns a copy of the message with its current tags
func (s *Store) Fetch(_ context.Context, id string) (*core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrNotFound, id)
	}

	msg := e.msg
	msg.Links = append([]string(nil), e.msg.Links...)
	msg.AuthResults = make(map[string]string, len(e.msg.AuthResults))
	for k, v := range e.msg.AuthResults {
		msg.AuthResults[k] = v
	}
	msg.Tags = make([]string, 0, len(e.tags))
	for t := range e.tags {
		msg.Tags = append(msg.Tags, t)
	}
	sort.Strings(msg.Tags)
	return &msg, nil
}

// EnsureTag registers a tag name; mailbox tag handles are the names themselves
func (s *Store) EnsureTag(_ context.Context, name string) (ports.TagHandle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty tag name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[name]; !ok {
		s.tags[name] = struct{}{}
		s.logger.Debug("Created mailbox tag", zap.String("tag", name))
	}
	return ports.TagHandle(name), nil
}

// ApplyTag adds a previously ensured tag to a message
func (s *Store) ApplyTag(_ context.Context, id string, tag ports.TagHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrNotFound, id)
	}
	if _, ok := s.tags[string(tag)]; !ok {
		return fmt.Errorf("unknown tag %q", tag)
	}
	e.tags[string(tag)] = struct{}{}
	return nil
}

// MarkProcessed flags the message and adds the processed tag
func (s *Store) MarkProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrNotFound, id)
	}
	e.processed = true
	if s.processedLabel != "" {
		s.tags[s.processedLabel] = struct{}{}
		e.tags[s.processedLabel] = struct{}{}
	}
	return nil
}

// Cleanup removes processed messages received more than the retention
// window ago
func (s *Store) Cleanup(_ context.Context) error {
	if s.retention <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.retention)
	kept := s.order[:0]
	pruned := 0
	for _, id := range s.order {
		e := s.entries[id]
		if e.processed && e.received.Before(cutoff) {
			delete(s.entries, id)
			pruned++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept

	s.logger.Debug("Pruned mailbox", zap.Int("pruned_count", pruned), zap.Int("remaining", len(s.order)))
	return nil
}

func (s *Store) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background()); err != nil {
				s.logger.Error("Failed to prune mailbox", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Close stops the background cleanup task
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}
