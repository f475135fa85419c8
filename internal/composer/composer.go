// Package composer writes the outbound SMS and email copy for follow-up
// actions. A generative service drafts the copy; hand-written templates per
// purpose take over whenever it fails or produces something off-contract.
package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"loancrm_backend/platform/logger"
	"loancrm_backend/platform/sanitize"
)

// Channel selects which copy to write.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelBoth  Channel = "both"
)

// maxSMSLength is the hard cap on generated SMS copy. Two concatenated GSM
// segments.
const maxSMSLength = 320

// Generator produces a structured completion. Satisfied by the gemini client.
type Generator interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

// Request carries everything the composer may mention in the copy.
type Request struct {
	FirstName       string
	BusinessName    string
	RequestedAmount float64
	SenderName      string

	Sequence    string
	Stage       int
	Purpose     string
	Channel     Channel
	QualityTier string
}

// Messages is the composed copy for one action. Fields outside the requested
// channel stay empty.
type Messages struct {
	SMS          string `json:"sms,omitempty"`
	EmailSubject string `json:"emailSubject,omitempty"`
	EmailBody    string `json:"emailBody,omitempty"`
}

const composerSystemInstruction = `You write outreach messages for a commercial-loan brokerage contacting business owners about their funding application.

Tone: helpful, direct, human. No pressure tactics, no emoji, no exclamation marks in SMS. Mention the recipient's first name when known. Sign with the sender name given.

Respond with a single JSON object and nothing else. Include only the keys requested:
  "sms": one SMS under 300 characters
  "emailSubject": a subject line under 70 characters
  "emailBody": a plain-text email of two or three short paragraphs`

// Composer drafts outreach copy. The generator is optional: when nil the
// templates handle everything.
type Composer struct {
	generator Generator
	log       *logger.Logger
	timeout   time.Duration
}

func New(generator Generator, log *logger.Logger) *Composer {
	return &Composer{
		generator: generator,
		log:       log,
		timeout:   20 * time.Second,
	}
}

// Compose writes copy for the requested channel. It never returns an error:
// any generative failure degrades to the purpose's template.
func (c *Composer) Compose(ctx context.Context, req Request) Messages {
	if c.generator == nil {
		return renderTemplates(req)
	}

	msgs, err := c.composeWithGenerator(ctx, req)
	if err != nil {
		c.log.AIFallback("message composition", err)
		return renderTemplates(req)
	}
	return msgs
}

func (c *Composer) composeWithGenerator(ctx context.Context, req Request) (Messages, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.generator.GenerateJSON(ctx, composerSystemInstruction, composerPrompt(req))
	if err != nil {
		return Messages{}, err
	}

	var msgs Messages
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &msgs); err != nil {
		return Messages{}, err
	}
	return validate(msgs, req)
}

func composerPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Purpose of this message: %s (stage %d of the %s sequence).\n",
		strings.ReplaceAll(req.Purpose, "_", " "), req.Stage+1, strings.ReplaceAll(req.Sequence, "_", " "))
	fmt.Fprintf(&b, "Channels to write: %s.\n", channelKeys(req.Channel))
	fmt.Fprintf(&b, "Sender name: %s.\n", req.SenderName)
	if req.FirstName != "" {
		fmt.Fprintf(&b, "Recipient first name: %s.\n", req.FirstName)
	}
	if req.BusinessName != "" {
		fmt.Fprintf(&b, "Business name: %s.\n", req.BusinessName)
	}
	if req.RequestedAmount > 0 {
		fmt.Fprintf(&b, "Requested funding amount: $%.0f.\n", req.RequestedAmount)
	}
	if req.QualityTier != "" {
		fmt.Fprintf(&b, "Internal lead tier (never mention this): %s.\n", req.QualityTier)
	}
	return b.String()
}

func channelKeys(channel Channel) string {
	switch channel {
	case ChannelSMS:
		return `"sms"`
	case ChannelEmail:
		return `"emailSubject" and "emailBody"`
	default:
		return `"sms", "emailSubject" and "emailBody"`
	}
}

// validate enforces the channel contract on the generated copy. A missing or
// oversized piece fails the whole draft so the deterministic templates cover
// every channel consistently.
func validate(msgs Messages, req Request) (Messages, error) {
	needsSMS := req.Channel == ChannelSMS || req.Channel == ChannelBoth
	needsEmail := req.Channel == ChannelEmail || req.Channel == ChannelBoth

	// Copy goes out as plain text on both channels; generated markup is
	// stripped, not escaped.
	msgs.SMS = sanitize.Text(msgs.SMS)
	msgs.EmailSubject = sanitize.Text(msgs.EmailSubject)
	msgs.EmailBody = sanitize.Text(msgs.EmailBody)

	if needsSMS {
		if msgs.SMS == "" {
			return Messages{}, fmt.Errorf("missing sms copy")
		}
		if len(msgs.SMS) > maxSMSLength {
			return Messages{}, fmt.Errorf("sms copy is %d chars, cap is %d", len(msgs.SMS), maxSMSLength)
		}
	} else {
		msgs.SMS = ""
	}

	if needsEmail {
		if msgs.EmailSubject == "" || msgs.EmailBody == "" {
			return Messages{}, fmt.Errorf("missing email copy")
		}
	} else {
		msgs.EmailSubject = ""
		msgs.EmailBody = ""
	}

	return msgs, nil
}

func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
