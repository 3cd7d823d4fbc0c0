package payment

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"telegram-bot-hosting/internal/config"
	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/ports/adapter"
)

func newGateway() *RobokassaGateway {
	return NewRobokassaGateway(&config.RobokassaConfig{
		MerchantLogin: "shop",
		Password1:     "pass1",
		Password2:     "pass2",
	})
}

func signedForm(outSum, invID, shp, password string) url.Values {
	form := url.Values{}
	form.Set("OutSum", outSum)
	form.Set("InvId", invID)
	form.Set("Shp_user_id", shp)
	form.Set("SignatureValue", md5Upper(outSum+":"+invID+":"+password+":Shp_user_id="+shp))
	return form
}

func TestParseNoticeSubscription(t *testing.T) {
	g := newGateway()
	n, err := g.ParseNotice(signedForm("349.00", "77", "555", "pass2"))
	if err != nil {
		t.Fatalf("ParseNotice: %v", err)
	}
	if n.UserID != 555 || n.Kind != adapter.PaymentSubscription || n.InvID != 77 {
		t.Fatalf("notice = %+v", n)
	}
	if n.OutSum != 349.00 {
		t.Fatalf("OutSum = %v", n.OutSum)
	}
}

func TestParseNoticeTokens(t *testing.T) {
	g := newGateway()

	n, err := g.ParseNotice(signedForm("990.00", "78", "555_tokens", "pass2"))
	if err != nil {
		t.Fatalf("ParseNotice: %v", err)
	}
	if n.Kind != adapter.PaymentTokens || n.BotID != "" {
		t.Fatalf("notice = %+v", n)
	}

	n, err = g.ParseNotice(signedForm("990.00", "79", "555_tokens_bot-abc", "pass2"))
	if err != nil {
		t.Fatalf("ParseNotice: %v", err)
	}
	if n.Kind != adapter.PaymentTokens || n.BotID != "bot-abc" {
		t.Fatalf("notice = %+v", n)
	}
}

func TestParseNoticeRejectsBadSignature(t *testing.T) {
	g := newGateway()

	if _, err := g.ParseNotice(signedForm("349.00", "77", "555", "wrong-password")); !errors.Is(err, domain.ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}

	// Tampered amount invalidates the signature.
	form := signedForm("349.00", "77", "555", "pass2")
	form.Set("OutSum", "1.00")
	if _, err := g.ParseNotice(form); !errors.Is(err, domain.ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}

	if _, err := g.ParseNotice(url.Values{}); !errors.Is(err, domain.ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestParseNoticeSignatureCaseInsensitive(t *testing.T) {
	g := newGateway()
	form := signedForm("349.00", "77", "555", "pass2")
	form.Set("SignatureValue", strings.ToLower(form.Get("SignatureValue")))
	if _, err := g.ParseNotice(form); err != nil {
		t.Fatalf("lower-case signature rejected: %v", err)
	}
}

func TestPaymentURL(t *testing.T) {
	g := newGateway()
	raw := g.PaymentURL(555, adapter.PaymentTokens, "bot-abc", 990, 42)

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("MerchantLogin") != "shop" || q.Get("OutSum") != "990.00" || q.Get("InvId") != "42" {
		t.Fatalf("query = %v", q)
	}
	if q.Get("Shp_user_id") != "555_tokens_bot-abc" {
		t.Fatalf("Shp_user_id = %q", q.Get("Shp_user_id"))
	}
	want := md5Upper("shop:990.00:42:pass1:Shp_user_id=555_tokens_bot-abc")
	if q.Get("SignatureValue") != want {
		t.Fatalf("signature = %q, want %q", q.Get("SignatureValue"), want)
	}
}
