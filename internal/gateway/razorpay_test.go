package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyPaymentSignature(t *testing.T) {
	c := New("key_id", "key_secret", "webhook_secret")

	sig := Sign([]byte("order_abc|pay_xyz"), "key_secret")

	assert.True(t, c.VerifyPaymentSignature("order_abc", "pay_xyz", sig))
	assert.False(t, c.VerifyPaymentSignature("order_abc", "pay_other", sig))
	assert.False(t, c.VerifyPaymentSignature("order_abc", "pay_xyz", "deadbeef"))
}

func TestVerifyPaymentSignatureWrongSecret(t *testing.T) {
	c := New("key_id", "key_secret", "webhook_secret")

	sig := Sign([]byte("order_abc|pay_xyz"), "some_other_secret")
	assert.False(t, c.VerifyPaymentSignature("order_abc", "pay_xyz", sig))
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := New("key_id", "key_secret", "webhook_secret")
	body := []byte(`{"event":"payment.captured"}`)

	assert.True(t, c.VerifyWebhookSignature(body, Sign(body, "webhook_secret")))
	assert.False(t, c.VerifyWebhookSignature(body, Sign(body, "key_secret")))
	assert.False(t, c.VerifyWebhookSignature([]byte(`{"event":"tampered"}`), Sign(body, "webhook_secret")))
}
