package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MessageCreator is the slice of the Twilio REST API the senders use.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// NewTwilioAPI returns the messages API for the account.
func NewTwilioAPI(accountSID, authToken string) MessageCreator {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return client.Api
}

// TwilioSender sends SMS, or WhatsApp when the addresses carry the whatsapp: prefix.
type TwilioSender struct {
	api      MessageCreator
	from     string
	whatsApp bool
}

// NewSMSSender sends plain SMS from the given number.
func NewSMSSender(api MessageCreator, from string) *TwilioSender {
	return &TwilioSender{api: api, from: from}
}

// NewWhatsAppSender sends WhatsApp messages from the given number.
func NewWhatsAppSender(api MessageCreator, from string) *TwilioSender {
	return &TwilioSender{api: api, from: from, whatsApp: true}
}

func whatsAppAddress(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

func (s *TwilioSender) Send(ctx context.Context, address string, msg Message) error {
	if address == "" {
		return ErrNoAddress
	}
	to, from := address, s.from
	if s.whatsApp {
		to, from = whatsAppAddress(to), whatsAppAddress(from)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(msg.Body)

	// the Twilio client takes no context, so the deadline is enforced here and
	// the request itself keeps running
	done := make(chan error, 1)
	go func() {
		_, err := s.api.CreateMessage(params)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("twilio send to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("twilio send to %s: %w: %w", to, ErrOutcomeUnknown, ctx.Err())
	}
}
