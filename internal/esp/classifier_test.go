package esp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		sender   string
		hops     []string
		raw      string
		expected string
	}{
		{
			name:     "amazon ses sender",
			sender:   "bounce@amazonses.com",
			hops:     []string{"mail.example.com"},
			expected: "Amazon SES",
		},
		{
			name:     "domain fallback",
			sender:   "a@unknownhost.xyz",
			hops:     []string{},
			expected: "unknownhost.xyz",
		},
		{
			name:     "nothing at all",
			sender:   "",
			expected: Unknown,
		},
		{
			name:     "no domain in sender",
			sender:   "postmaster",
			hops:     []string{"relay.internal"},
			expected: Unknown,
		},
		{
			name:     "hop identifies provider",
			sender:   "news@shop.example",
			hops:     []string{"o1.ptr1234.sendgrid.net"},
			expected: "SendGrid",
		},
		{
			name:     "raw headers identify provider",
			sender:   "hello@brand.example",
			raw:      "X-Mailgun-Sid: abc",
			expected: "Mailgun",
		},
		{
			name:     "case insensitive",
			sender:   "someone@YAHOO.COM",
			expected: "Yahoo Mail",
		},
		{
			name:     "higher confidence beats earlier match",
			sender:   "me@gmail.com",
			hops:     []string{"mta.postmarkapp.com"},
			expected: "Postmark",
		},
		{
			name:     "equal confidence keeps declaration order",
			sender:   "x@brand.example",
			hops:     []string{"relay.outlook.com", "mx.google.com"},
			expected: "Gmail / Google",
		},
		{
			name:     "equal confidence top three",
			sender:   "x@mailgun.org",
			raw:      "amazonaws sendgrid",
			expected: "Amazon SES",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.sender, tt.hops, tt.raw))
		})
	}
}

func TestCandidatesIncludeEveryMatch(t *testing.T) {
	got := Candidates("ops@zoho.example", []string{"smtp.sparkpostmail.com"}, "")

	assert.Equal(t, []Candidate{
		{Name: "SparkPost", Score: 0.97},
		{Name: "Zoho Mail", Score: 0.94},
		{Name: "zoho.example", Score: DomainConfidence},
	}, got)
}

func TestClassifyNeverEmpty(t *testing.T) {
	inputs := []string{"", "@", "a@", "@@", "plain text", "x@y"}
	for _, in := range inputs {
		assert.NotEmpty(t, Classify(in, nil, ""), in)
	}
}

func TestSenderDomain(t *testing.T) {
	assert.Equal(t, "example.com", SenderDomain("user@example.com"))
	assert.Equal(t, "c.example", SenderDomain("a@b@c.example"))
	assert.Equal(t, "", SenderDomain("Name <user@example.com>"))
	assert.Equal(t, "", SenderDomain("user@"))
}

func TestRulesDeclarationOrder(t *testing.T) {
	labels := make([]string, 0, len(Rules))
	for _, r := range Rules {
		labels = append(labels, r.Label)
	}

	assert.Equal(t, []string{
		"Amazon SES", "SendGrid", "Mailgun", "Postmark", "Mailchimp", "SparkPost",
		"Sendinblue", "Zoho Mail", "Gmail / Google", "Outlook / Microsoft 365", "Yahoo Mail",
	}, labels)
}
