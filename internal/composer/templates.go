package composer

import (
	"fmt"
	"strings"
)

// messageTemplate is the hand-written copy for one purpose. Placeholders:
// {firstName}, {greeting}, {business}, {amount}, {sender}.
type messageTemplate struct {
	sms          string
	emailSubject string
	emailBody    string
}

var purposeTemplates = map[string]messageTemplate{
	"initial_contact": {
		sms:          "{greeting} thanks for reaching out about funding for {business}. I'm {sender} and I'll be your point of contact. When is a good time for a quick call?",
		emailSubject: "Your funding request for {business}",
		emailBody:    "{greeting}\n\nThanks for starting a funding request for {business}. I've received it and I'm already looking at options that could fit.\n\nReply to this email or grab a time that works for you, and we'll go over the details together.\n\n{sender}",
	},
	"follow_up": {
		sms:          "{greeting} following up on your funding request for {business}. I have a few options ready to walk through whenever you are. - {sender}",
		emailSubject: "Following up on your {business} funding request",
		emailBody:    "{greeting}\n\nJust following up on the funding request you started for {business}. I've pulled together a few programs that could work for {amount}.\n\nIf now isn't the right time, let me know what timeline you're working with and I'll plan around it.\n\n{sender}",
	},
	"value_proposition": {
		sms:          "{greeting} businesses like {business} typically qualify for several funding programs. I'd love to show you what {amount} could look like. - {sender}",
		emailSubject: "What {amount} in funding could look like for {business}",
		emailBody:    "{greeting}\n\nI wanted to share what funding typically looks like for businesses like {business}: flexible terms, funding in days rather than weeks, and no obligation until you sign.\n\nBased on what you've told us so far, {amount} is a realistic target. A ten-minute call is enough to confirm the numbers.\n\n{sender}",
	},
	"check_in": {
		sms:          "{greeting} just checking in on your funding plans for {business}. Still happy to help whenever the timing is right. - {sender}",
		emailSubject: "Checking in on {business}",
		emailBody:    "{greeting}\n\nJust checking in. Your funding request for {business} is still open on our side, and nothing has expired.\n\nIf your plans have changed, a one-line reply is all I need. Otherwise I'm here when you're ready to pick it back up.\n\n{sender}",
	},
	"application_reminder": {
		sms:          "{greeting} your funding application for {business} is almost done. It takes about 5 more minutes to finish. - {sender}",
		emailSubject: "Your application is almost complete",
		emailBody:    "{greeting}\n\nYou're most of the way through the funding application for {business}. Finishing it takes about five minutes, and everything you've entered so far is saved.\n\nOnce it's in, I can start matching you with lenders the same day.\n\n{sender}",
	},
	"application_help": {
		sms:          "{greeting} stuck on the application for {business}? I can fill in the rest with you over a quick call. - {sender}",
		emailSubject: "Need a hand finishing your application?",
		emailBody:    "{greeting}\n\nI noticed the application for {business} isn't finished yet. If any question tripped you up, that's what I'm here for; we can complete it together on a short call.\n\nMost people finish in under ten minutes once we're on the phone.\n\n{sender}",
	},
	"incentive": {
		sms:          "{greeting} complete your {business} application this week and I'll fast-track the lender review, usually same-day. - {sender}",
		emailSubject: "Fast-track offer for {business}",
		emailBody:    "{greeting}\n\nIf you complete the application for {business} this week, I'll put it at the front of the review queue. That usually means lender responses the same day.\n\nYour saved progress is still there; it only needs a few more answers.\n\n{sender}",
	},
	"final_reminder": {
		sms:          "{greeting} last note from me: your {business} funding application expires soon. Reply if you'd like to keep it open. - {sender}",
		emailSubject: "Last reminder about your {business} application",
		emailBody:    "{greeting}\n\nThis is my last reminder about the open funding application for {business}. After this I'll assume the timing isn't right and stop reaching out.\n\nIf you'd like to keep it open, just reply and I'll hold your place.\n\n{sender}",
	},
	"docs_request": {
		sms:          "{greeting} great news, your {business} application is in. To match you with lenders I just need a few documents. Check your email for the list. - {sender}",
		emailSubject: "Documents needed to fund {business}",
		emailBody:    "{greeting}\n\nYour application for {business} is complete. The last step before lender matching is documentation: typically three months of bank statements, or a direct bank connection which takes two minutes.\n\nThe sooner I have these, the sooner I can bring you offers.\n\n{sender}",
	},
	"docs_instructions": {
		sms:          "{greeting} reminder: {business} is one step from lender review. Connecting your bank takes 2 minutes and replaces the paperwork. - {sender}",
		emailSubject: "Two minutes to finish your {business} file",
		emailBody:    "{greeting}\n\nQuick reminder that {business} is one step away from lender review. The fastest route is the secure bank connection in your portal; it takes about two minutes and replaces the statement uploads.\n\nPrefer to upload statements instead? Reply and I'll send the upload link.\n\n{sender}",
	},
	"docs_reminder": {
		sms:          "{greeting} your {business} file is still waiting on documents. Without them I can't bring you offers. Can I help you get them in? - {sender}",
		emailSubject: "Your {business} file is on hold",
		emailBody:    "{greeting}\n\nYour funding file for {business} is complete except for the documents, and I can't take it to lenders without them.\n\nIf anything about the process is unclear, reply here and I'll walk you through it.\n\n{sender}",
	},
	"re_engagement": {
		sms:          "{greeting} it's been a while since we talked about funding for {business}. Rates and programs have changed; worth a fresh look? - {sender}",
		emailSubject: "New funding options for {business}",
		emailBody:    "{greeting}\n\nIt's been a while since we last talked about funding for {business}. Lender programs have shifted since then, and some of the new options may fit better than what was available before.\n\nIf funding is back on your radar, I can re-run your numbers with no new paperwork.\n\n{sender}",
	},
	"new_offer": {
		sms:          "{greeting} a lender program just opened up that fits {business} well. Want me to send the details? - {sender}",
		emailSubject: "A program that fits {business}",
		emailBody:    "{greeting}\n\nA lender program just opened up that matches businesses like {business}. Based on your earlier request for {amount}, I think it's worth a look.\n\nReply and I'll send the specifics, no new application needed.\n\n{sender}",
	},
	"last_chance": {
		sms:          "{greeting} I'm closing out your {business} funding file this week unless I hear from you. One reply keeps it open. - {sender}",
		emailSubject: "Closing your {business} file",
		emailBody:    "{greeting}\n\nI'm closing out inactive funding files this week and yours for {business} is on the list. A one-line reply keeps it open with everything you've already provided.\n\nEither way, thanks for considering us, and the door stays open if your plans change.\n\n{sender}",
	},
	"relationship": {
		sms:          "{greeting} no ask here, just making sure you have my number for anything funding-related for {business}. - {sender}",
		emailSubject: "Here when you need us",
		emailBody:    "{greeting}\n\nNo ask in this one. I just wanted to make sure you have a direct line for anything funding-related for {business}, whether that's next month or next year.\n\nWishing you a strong quarter.\n\n{sender}",
	},
	"market_update": {
		sms:          "{greeting} lending conditions have improved for businesses like {business} this quarter. Happy to share what that means for you. - {sender}",
		emailSubject: "Lending update for businesses like {business}",
		emailBody:    "{greeting}\n\nA quick market note: lending conditions for businesses like {business} have improved this quarter, with better terms at several of our partner lenders.\n\nIf you'd like updated numbers for your situation, it takes one reply.\n\n{sender}",
	},
}

// defaultTemplate covers any purpose missing from the table so the engine
// never dispatches an empty message.
var defaultTemplate = messageTemplate{
	sms:          "{greeting} an update on your funding request for {business} is ready. Reply or call when convenient. - {sender}",
	emailSubject: "An update on your {business} funding request",
	emailBody:    "{greeting}\n\nThere's an update on your funding request for {business}. Reply to this email or give me a call and I'll walk you through it.\n\n{sender}",
}

// HasTemplate reports whether a purpose has hand-written copy. Purposes
// without one fall back to the generic template.
func HasTemplate(purpose string) bool {
	_, ok := purposeTemplates[purpose]
	return ok
}

// renderTemplates produces deterministic copy for the request's channel.
func renderTemplates(req Request) Messages {
	tmpl, ok := purposeTemplates[req.Purpose]
	if !ok {
		tmpl = defaultTemplate
	}

	replacer := newReplacer(req)
	var msgs Messages
	if req.Channel == ChannelSMS || req.Channel == ChannelBoth {
		msgs.SMS = replacer.Replace(tmpl.sms)
	}
	if req.Channel == ChannelEmail || req.Channel == ChannelBoth {
		msgs.EmailSubject = replacer.Replace(tmpl.emailSubject)
		msgs.EmailBody = replacer.Replace(tmpl.emailBody)
	}
	return msgs
}

func newReplacer(req Request) *strings.Replacer {
	greeting := "Hi there,"
	if name := strings.TrimSpace(req.FirstName); name != "" {
		greeting = "Hi " + name + ","
	}
	business := strings.TrimSpace(req.BusinessName)
	if business == "" {
		business = "your business"
	}
	amount := "the amount you requested"
	if req.RequestedAmount > 0 {
		amount = fmt.Sprintf("$%s", formatAmount(req.RequestedAmount))
	}
	sender := strings.TrimSpace(req.SenderName)
	if sender == "" {
		sender = "Your funding team"
	}

	return strings.NewReplacer(
		"{greeting}", greeting,
		"{firstName}", strings.TrimSpace(req.FirstName),
		"{business}", business,
		"{amount}", amount,
		"{sender}", sender,
	)
}

// formatAmount renders 125000 as "125,000".
func formatAmount(v float64) string {
	whole := fmt.Sprintf("%.0f", v)
	if len(whole) <= 3 {
		return whole
	}
	var b strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		b.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}
	return b.String()
}
