package twiliowhatsapp

import (
	"fmt"
	"net/http"

	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
)

// SignatureHeader carries the Twilio request signature.
const SignatureHeader = "X-Twilio-Signature"

// Inbound is the subset of the Twilio inbound-message webhook the bot reads.
type Inbound struct {
	From        string
	Body        string
	ProfileName string
}

// ParseInbound reads the form-encoded webhook body.
func ParseInbound(r *http.Request) (Inbound, error) {
	if err := r.ParseForm(); err != nil {
		return Inbound{}, fmt.Errorf("failed to parse webhook form: %w", err)
	}
	return Inbound{
		From:        r.PostForm.Get("From"),
		Body:        r.PostForm.Get("Body"),
		ProfileName: r.PostForm.Get("ProfileName"),
	}, nil
}

// MessagingResponse renders a TwiML document replying with a single message.
func MessagingResponse(reply string) (string, error) {
	doc, err := twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: reply}})
	if err != nil {
		return "", fmt.Errorf("failed to render TwiML: %w", err)
	}
	return doc, nil
}

// SignatureValidator checks X-Twilio-Signature against the public webhook URL.
type SignatureValidator struct {
	validator client.RequestValidator
	url       string
}

// NewSignatureValidator validates signatures computed with authToken over url.
func NewSignatureValidator(authToken, url string) *SignatureValidator {
	return &SignatureValidator{validator: client.NewRequestValidator(authToken), url: url}
}

// Valid reports whether r carries a correct signature. The form must already be parsed.
func (v *SignatureValidator) Valid(r *http.Request) bool {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	return v.validator.Validate(v.url, params, signature)
}
