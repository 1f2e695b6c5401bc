package sentinel

import "errors"

// Infrastructure facts returned (optionally wrapped) by stores. Services
// translate them into coded domain errors; they never reach a client as-is.
//
//   - ErrNotFound: no row/key for the requested identity
//   - ErrAlreadyUsed: the key is already taken (create-if-absent lost)
//   - ErrUnavailable: backend temporarily unreachable
//
// Input validation failures use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
