package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type MemberClaims struct {
	jwt.RegisteredClaims
	MemberID int64 `json:"member_id"`
}

type MemberTokenManager struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	now        func() time.Time
}

func NewMemberTokenManager(signingKey []byte, ttl time.Duration, issuer string) *MemberTokenManager {
	return &MemberTokenManager{signingKey: signingKey, ttl: ttl, issuer: issuer, now: time.Now}
}

func (m *MemberTokenManager) Generate(memberID int64) (string, error) {
	now := m.now()
	claims := MemberClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   strconv.FormatInt(memberID, 10),
			Issuer:    m.issuer,
		},
		MemberID: memberID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingKey)
}

// Validate parses an HS256 token issued by this manager.
func (m *MemberTokenManager) Validate(tokenString string) (*MemberClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &MemberClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*MemberClaims)
	if !ok || !token.Valid || claims.MemberID <= 0 {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
