package ports

import "github.com/bft-labs/tillsync/pkg/log"

// Logger is the logging port. It aliases the public interface so embedders
// can pass their own implementation straight through.
type Logger = log.Logger
