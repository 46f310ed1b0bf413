package session

import (
	"time"

	"pulse/cmd/identity/ids"

	paseto "aidanwoods.dev/go-paseto"
)

// AccessClaims is the identity envelope carried by an access token across HTTP and WS.
type AccessClaims struct {
	TokenID   string
	UserID    string
	SessionID string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// AccessTokenManager issues and verifies short-lived access tokens.
type AccessTokenManager interface {
	Issue(userID, sessionID string, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
}

type pasetoV4PublicManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicManager builds an AccessTokenManager signing PASETO v4.public tokens
// with the Ed25519 key from cfg. Verification enforces issuer and expiry with cfg.ClockSkew
// of tolerance.
func NewPasetoV4PublicManager(cfg Config) (AccessTokenManager, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, ErrConfig
	}

	return &pasetoV4PublicManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

func (m *pasetoV4PublicManager) Issue(userID, sessionID string, now time.Time) (string, time.Time, error) {
	jti, err := ids.NewULID(now)
	if err != nil {
		return "", time.Time{}, err
	}
	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetJti(jti)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	tok.SetString("uid", userID)
	tok.SetString("sid", sessionID)

	return tok.V4Sign(m.secret, nil), exp, nil
}

func (m *pasetoV4PublicManager) Verify(token string, now time.Time) (AccessClaims, error) {
	// Validating slightly in the future tolerates "nbf" drift between hosts.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(m.issuer))
	p.AddRule(paseto.ValidAt(now.Add(m.clockSkew)))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	exp, err := parsed.GetExpiration()
	if err != nil || !exp.After(now) {
		return AccessClaims{}, ErrInvalidToken
	}

	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	sid, err := parsed.GetString("sid")
	if err != nil || sid == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	iss, _ := parsed.GetIssuer()
	iat, _ := parsed.GetIssuedAt()
	jti, _ := parsed.GetJti()

	return AccessClaims{
		TokenID:   jti,
		UserID:    uid,
		SessionID: sid,
		ExpiresAt: exp,
		IssuedAt:  iat,
		Issuer:    iss,
	}, nil
}
