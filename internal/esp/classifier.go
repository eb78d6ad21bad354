package esp

import (
	"regexp"
	"sort"
	"strings"
)

// Unknown is returned when nothing identifies the sender's provider
const Unknown = "Unknown"

// DomainConfidence is the score given to the sender's own domain
const DomainConfidence = 0.5

// Rule maps provider signatures to a label
type Rule struct {
	Label      string
	Confidence float64
	Needles    []string
}

// Rules is the provider signature table. Order matters: when two labels score
// the same, the one declared first wins.
var Rules = []Rule{
	{Label: "Amazon SES", Confidence: 0.99, Needles: []string{"amazonses", "amazonaws"}},
	{Label: "SendGrid", Confidence: 0.99, Needles: []string{"sendgrid"}},
	{Label: "Mailgun", Confidence: 0.99, Needles: []string{"mailgun"}},
	{Label: "Postmark", Confidence: 0.98, Needles: []string{"postmark"}},
	{Label: "Mailchimp", Confidence: 0.97, Needles: []string{"mandrill", "mailchimp"}},
	{Label: "SparkPost", Confidence: 0.97, Needles: []string{"sparkpost"}},
	{Label: "Sendinblue", Confidence: 0.96, Needles: []string{"sendinblue"}},
	{Label: "Zoho Mail", Confidence: 0.94, Needles: []string{"zoho"}},
	{Label: "Gmail / Google", Confidence: 0.93, Needles: []string{"google", "gmail.com"}},
	{Label: "Outlook / Microsoft 365", Confidence: 0.93, Needles: []string{"outlook", "office365", "microsoft"}},
	{Label: "Yahoo Mail", Confidence: 0.90, Needles: []string{"yahoo"}},
}

var domainPattern = regexp.MustCompile(`(?i)@([a-z0-9\-._]+)$`)

// Candidate is one scored guess
type Candidate struct {
	Name  string
	Score float64
}

// Classify returns the most likely sending provider for a message
func Classify(sender string, hops []string, rawHeaders string) string {
	candidates := Candidates(sender, hops, rawHeaders)
	if len(candidates) == 0 {
		return Unknown
	}
	return candidates[0].Name
}

// Candidates returns every matching guess, best first
func Candidates(sender string, hops []string, rawHeaders string) []Candidate {
	parts := make([]string, 0, len(hops)+2)
	parts = append(parts, sender)
	parts = append(parts, hops...)
	parts = append(parts, rawHeaders)
	text := strings.ToLower(strings.Join(parts, " "))

	var candidates []Candidate
	for _, rule := range Rules {
		if rule.matches(text) {
			candidates = append(candidates, Candidate{Name: rule.Label, Score: rule.Confidence})
		}
	}

	if domain := SenderDomain(sender); domain != "" {
		candidates = append(candidates, Candidate{Name: domain, Score: DomainConfidence})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// SenderDomain returns the part of the address after the last '@'
func SenderDomain(sender string) string {
	m := domainPattern.FindStringSubmatch(sender)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func (r Rule) matches(text string) bool {
	for _, needle := range r.Needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
