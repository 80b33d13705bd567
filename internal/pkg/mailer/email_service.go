// FILE: internal/pkg/mailer/email_service.go
package mailer

import (
	"fmt"
	"os"

	"gopkg.in/gomail.v2"
)

type IEmailService interface {
	SendPastDueNotice(toEmail, planName string, graceDays int) error
	SendDowngradeNotice(toEmail, planName string) error
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
	frontendURL string // Added to construct links
}

func NewEmailService(host string, port int, username, password, senderEmail string) IEmailService {
	d := gomail.NewDialer(host, port, username, password)

	// Get Frontend URL from ENV or default to a safe placeholder
	frontendURL := os.Getenv("FRONTEND_URL")

	return &emailService{
		dialer:      d,
		senderEmail: senderEmail,
		frontendURL: frontendURL,
	}
}

func (s *emailService) SendPastDueNotice(toEmail, planName string, graceDays int) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.senderEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "Payment Issue With Your Subscription")

	// Link straight to the billing page on the FRONTEND
	billingLink := fmt.Sprintf("%s/settings/billing", s.frontendURL)

	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>We couldn't renew your %s plan</h2>
			<p>Your latest payment did not go through. Your plan benefits stay active for %d more days while we retry.</p>
			<a href="%s" style="background-color: #007BFF; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px; display: inline-block;">Update Payment Method</a>
			<p>If payment isn't resolved by then, your account will move to the free plan.</p>
		</div>
	`, planName, graceDays, billingLink)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		fmt.Printf("[MAILER ERROR] Failed to send Past Due notice to %s: %v\n", toEmail, err)
		return err
	}

	fmt.Printf("[MAILER] Past Due notice sent to %s\n", toEmail)
	return nil
}

func (s *emailService) SendDowngradeNotice(toEmail, planName string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.senderEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "Your Subscription Has Been Downgraded")

	upgradeLink := fmt.Sprintf("%s/plans", s.frontendURL)

	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>Your %s plan has ended</h2>
			<p>The grace period ran out without a successful payment, so your account is now on the free plan.</p>
			<p>Your data is safe. You can resubscribe at any time to get your benefits back:</p>
			<a href="%s" style="background-color: #4CAF50; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px; display: inline-block;">View Plans</a>
		</div>
	`, planName, upgradeLink)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		fmt.Printf("[MAILER ERROR] Failed to send Downgrade notice to %s: %v\n", toEmail, err)
		return err
	}

	fmt.Printf("[MAILER] Downgrade notice sent to %s\n", toEmail)
	return nil
}
