package authgate

import "log"

// EmailSender delivers verification emails. Delivery failures are returned to
// the caller; the orchestrator decides how they affect the flow.
type EmailSender interface {
	SendVerificationEmail(to string, verificationLink string) error
}

// ConsoleEmailSender is a development implementation that logs emails to console
type ConsoleEmailSender struct{}

func (c *ConsoleEmailSender) SendVerificationEmail(to string, verificationLink string) error {
	log.Printf("\n=== EMAIL: Verification ===")
	log.Printf("To: %s", to)
	log.Printf("Subject: Verify your email address")
	log.Printf("Body: Please verify your email by clicking: %s", verificationLink)
	log.Printf("===========================\n")
	return nil
}
