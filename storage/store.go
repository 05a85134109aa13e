package storage

import "context"

// MediaStore holds uploaded media between the submission request and the
// worker that processes it. Objects live only until the owning job reaches a
// terminal state.
type MediaStore interface {
	// Put copies localPath into the store; the caller keeps ownership of the
	// local file and is responsible for removing it.
	Put(ctx context.Context, objectPath, localPath string) error
	Fetch(ctx context.Context, objectPath, localPath string) error
	Remove(ctx context.Context, objectPath string) error
}
