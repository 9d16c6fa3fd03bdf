package alert

import (
	"fmt"
	"math"

	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/utils"
)

// MaxBodyLength keeps alerts within a single SMS segment
const MaxBodyLength = 140

// FormatBody renders the ASCII alert text for a score
func FormatBody(brand string, score float64, s core.AlertSummary) string {
	body := fmt.Sprintf("[%s] Risk %d/100 | From: %s | Subj: %s",
		brand,
		int(math.RoundToEven(score)),
		utils.Shorten(s.Sender, 40),
		utils.Shorten(s.Subject, 60),
	)
	if link := utils.Shorten(s.Link, 30); link != "" {
		body += " | Link: " + link
	}
	return utils.Shorten(utils.ASCII(body), MaxBodyLength)
}
