// Copyright 2021 Microsoft. All rights reserved.
// MIT License

package netlink

import (
	"context"
)

// Enumerator lists the links of the network namespace the calling thread is
// currently in. Implementations return either every link or an error, never
// a partial list.
type Enumerator interface {
	Links(ctx context.Context, namespace string) (Links, error)
}
