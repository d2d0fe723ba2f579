// Package gateway wraps the Razorpay API and the signature checks for
// both confirmation paths.
package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// Client talks to Razorpay and verifies its signatures.
type Client struct {
	rz            *razorpay.Client
	keyID         string
	keySecret     string
	webhookSecret string
}

// New creates a gateway client.
func New(keyID, keySecret, webhookSecret string) *Client {
	return &Client{
		rz:            razorpay.NewClient(keyID, keySecret),
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
	}
}

// KeyID returns the public key id handed to the hosted checkout.
func (c *Client) KeyID() string {
	return c.keyID
}

// CreateOrder creates a gateway order. Amounts are held in whole rupees
// everywhere else; the paise conversion happens only here at the API
// boundary.
func (c *Client) CreateOrder(amount int64, currency, receipt string, notes map[string]interface{}) (string, error) {
	data := map[string]interface{}{
		"amount":   amount * 100,
		"currency": currency,
		"receipt":  receipt,
		"notes":    notes,
	}

	body, err := c.rz.Order.Create(data, nil)
	if err != nil {
		return "", fmt.Errorf("razorpay order create failed: %w", err)
	}

	orderID, ok := body["id"].(string)
	if !ok || orderID == "" {
		return "", fmt.Errorf("razorpay order create returned no id")
	}
	return orderID, nil
}

// VerifyPaymentSignature checks the client-callback signature, an
// HMAC-SHA256 of "<orderID>|<paymentID>" under the key secret. The
// comparison is constant time.
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	payload := orderID + "|" + paymentID
	return verifyHMAC([]byte(payload), signature, c.keySecret)
}

// VerifyWebhookSignature checks the webhook signature header, an
// HMAC-SHA256 of the raw request body under the webhook secret.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	return verifyHMAC(body, signature, c.webhookSecret)
}

func verifyHMAC(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the hex HMAC-SHA256 of payload under secret. Exported
// for tests and tooling that need to produce valid signatures.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
