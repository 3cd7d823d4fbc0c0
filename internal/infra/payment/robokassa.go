package payment

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"telegram-bot-hosting/internal/config"
	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*RobokassaGateway)(nil)

// RobokassaGateway signs payment links with password1 and verifies result
// webhooks with password2. Custom Shp_ parameters ride along in both
// signatures in alphabetical order.
type RobokassaGateway struct {
	cfg *config.RobokassaConfig
}

func NewRobokassaGateway(cfg *config.RobokassaConfig) *RobokassaGateway {
	return &RobokassaGateway{cfg: cfg}
}

// shpUserID encodes the purchase intent: plain user id for subscriptions,
// "{userID}_tokens" or "{userID}_tokens_{botID}" for token packs.
func shpUserID(userID int64, kind adapter.PaymentKind, botID string) string {
	if kind != adapter.PaymentTokens {
		return strconv.FormatInt(userID, 10)
	}
	if botID == "" {
		return fmt.Sprintf("%d_tokens", userID)
	}
	return fmt.Sprintf("%d_tokens_%s", userID, botID)
}

func parseShpUserID(raw string) (int64, adapter.PaymentKind, string, error) {
	parts := strings.SplitN(raw, "_", 3)
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("shp_user_id %q: %w", raw, domain.ErrInvalidArgument)
	}
	if len(parts) == 1 {
		return userID, adapter.PaymentSubscription, "", nil
	}
	if parts[1] != "tokens" {
		return 0, "", "", fmt.Errorf("shp_user_id %q: %w", raw, domain.ErrInvalidArgument)
	}
	botID := ""
	if len(parts) == 3 {
		botID = parts[2]
	}
	return userID, adapter.PaymentTokens, botID, nil
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// ParseNotice verifies the ResultURL callback. The expected signature is
// MD5("OutSum:InvId:password2:Shp_user_id=<v>") in upper hex.
func (g *RobokassaGateway) ParseNotice(form url.Values) (*adapter.PaymentNotice, error) {
	outSumStr := form.Get("OutSum")
	invIDStr := form.Get("InvId")
	gotSig := form.Get("SignatureValue")
	shp := form.Get("Shp_user_id")
	if outSumStr == "" || invIDStr == "" || gotSig == "" || shp == "" {
		return nil, fmt.Errorf("missing webhook fields: %w", domain.ErrBadSignature)
	}

	want := md5Upper(fmt.Sprintf("%s:%s:%s:Shp_user_id=%s", outSumStr, invIDStr, g.cfg.Password2, shp))
	if subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToUpper(gotSig))) != 1 {
		return nil, domain.ErrBadSignature
	}

	outSum, err := strconv.ParseFloat(outSumStr, 64)
	if err != nil {
		return nil, fmt.Errorf("OutSum %q: %w", outSumStr, domain.ErrInvalidArgument)
	}
	invID, err := strconv.ParseInt(invIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("InvId %q: %w", invIDStr, domain.ErrInvalidArgument)
	}
	userID, kind, botID, err := parseShpUserID(shp)
	if err != nil {
		return nil, err
	}

	return &adapter.PaymentNotice{
		OutSum: outSum,
		InvID:  invID,
		UserID: userID,
		Kind:   kind,
		BotID:  botID,
	}, nil
}

// PaymentURL builds the hosted checkout link, signed with password1.
func (g *RobokassaGateway) PaymentURL(userID int64, kind adapter.PaymentKind, botID string, amount float64, invID int64) string {
	outSum := strconv.FormatFloat(amount, 'f', 2, 64)
	shp := shpUserID(userID, kind, botID)
	sig := md5Upper(fmt.Sprintf("%s:%s:%d:%s:Shp_user_id=%s",
		g.cfg.MerchantLogin, outSum, invID, g.cfg.Password1, shp))

	q := url.Values{}
	q.Set("MerchantLogin", g.cfg.MerchantLogin)
	q.Set("OutSum", outSum)
	q.Set("InvId", strconv.FormatInt(invID, 10))
	q.Set("SignatureValue", sig)
	q.Set("Shp_user_id", shp)
	if g.cfg.IsTest {
		q.Set("IsTest", "1")
	}
	return "https://auth.robokassa.ru/Merchant/Index.aspx?" + q.Encode()
}
