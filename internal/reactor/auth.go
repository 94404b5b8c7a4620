package reactor

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/distfs/distfs/internal/dferr"
)

// clusterClaims is the JOIN_CLUSTER token payload (SPEC_FULL.md's
// authentication supplement): a node asserting its own identity to join
// the cluster and transition its connection to AUTHENTICATED.
type clusterClaims struct {
	NodeID string `json:"node_id"`
	jwt.RegisteredClaims
}

// Authenticator validates JOIN_CLUSTER tokens against the cluster's
// shared signing secret.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// IssueToken mints a JOIN_CLUSTER token for nodeID, used by a node
// dialing into the cluster to authenticate itself.
func (a *Authenticator) IssueToken(nodeID string, ttl time.Duration) (string, error) {
	claims := clusterClaims{
		NodeID: nodeID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(a.secret)
}

// Verify validates a JOIN_CLUSTER token and returns the asserted node id.
func (a *Authenticator) Verify(token string) (string, error) {
	claims := &clusterClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dferr.New(dferr.PermissionDenied, "unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", dferr.Wrap(dferr.PermissionDenied, err, "join_cluster token rejected")
	}
	if !parsed.Valid {
		return "", dferr.New(dferr.PermissionDenied, "join_cluster token rejected: not valid")
	}
	return claims.NodeID, nil
}
