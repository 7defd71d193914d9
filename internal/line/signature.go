package line

import "github.com/line/line-bot-sdk-go/v8/linebot/webhook"

// SignatureHeader carries the webhook body signature.
const SignatureHeader = "X-Line-Signature"

// VerifySignature reports whether signature is base64(HMAC-SHA256(secret, body)).
func VerifySignature(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	return webhook.ValidateSignature(secret, signature, body)
}
