package authflow

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	statePrefix      = "user_"
	stateRandomBytes = 32
)

// ErrMalformedState is returned by ParseState for states not produced by Begin.
var ErrMalformedState = errors.New("malformed authorization state")

// newState returns "user_<id>_<random>", where random is 32 bytes of
// base64url without padding.
func newState(userID int64) (string, error) {
	buf := make([]byte, stateRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return statePrefix + strconv.FormatInt(userID, 10) + "_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// ParseState extracts the chat user id embedded in a state token.
// It does not check that the state is the one that was issued.
func ParseState(state string) (int64, error) {
	rest, ok := strings.CutPrefix(state, statePrefix)
	if !ok {
		return 0, ErrMalformedState
	}
	idPart, _, _ := strings.Cut(rest, "_")
	userID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	return userID, nil
}
