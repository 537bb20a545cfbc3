package mqttd

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"net"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

// AuthRequest carries the credentials and connection details of a CONNECT
// attempt.
type AuthRequest struct {
	// ClientID is the client identifier, after server assignment if the
	// client sent none.
	ClientID string

	// Username and Password are the CONNECT credentials. Both may be empty.
	Username string
	Password []byte

	// RemoteAddr is the transport remote address.
	RemoteAddr net.Addr
}

// Authenticator decides whether a CONNECT attempt may proceed. A non-success
// reason code is sent to the client in CONNACK before the connection closes.
// Returning an error also refuses the connection, with ReasonNotAuthorized
// unless the reason code says otherwise.
type Authenticator interface {
	Authenticate(ctx context.Context, req *AuthRequest) (ReasonCode, error)
}

const (
	pbkdf2Iterations = 4096
	pbkdf2KeyLength  = 32
	pbkdf2SaltLength = 16
)

type pbkdf2Credential struct {
	salt []byte
	hash []byte
}

// PBKDF2Authenticator verifies username/password credentials against a
// table of PBKDF2-SHA256 derived keys. Passwords are never stored.
type PBKDF2Authenticator struct {
	mu    sync.RWMutex
	users map[string]pbkdf2Credential
}

// NewPBKDF2Authenticator creates an authenticator with no users. Until a
// user is added every connection is refused.
func NewPBKDF2Authenticator() *PBKDF2Authenticator {
	return &PBKDF2Authenticator{
		users: make(map[string]pbkdf2Credential),
	}
}

// AddUser registers or replaces a user's credentials.
func (a *PBKDF2Authenticator) AddUser(username, password string) error {
	salt := make([]byte, pbkdf2SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return err
	}

	hash := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[username] = pbkdf2Credential{salt: salt, hash: hash}
	return nil
}

// RemoveUser deletes a user. Removing an absent user is not an error.
func (a *PBKDF2Authenticator) RemoveUser(username string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.users, username)
}

// Authenticate verifies the request credentials in constant time.
func (a *PBKDF2Authenticator) Authenticate(_ context.Context, req *AuthRequest) (ReasonCode, error) {
	a.mu.RLock()
	cred, ok := a.users[req.Username]
	a.mu.RUnlock()

	if !ok {
		// Burn a derivation anyway so unknown and known users take the
		// same time.
		pbkdf2.Key(req.Password, make([]byte, pbkdf2SaltLength), pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
		return ReasonBadUserNameOrPassword, nil
	}

	hash := pbkdf2.Key(req.Password, cred.salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	if subtle.ConstantTimeCompare(hash, cred.hash) != 1 {
		return ReasonBadUserNameOrPassword, nil
	}

	return ReasonSuccess, nil
}
