// Package uploads stores product image attachments behind a small Storage
// interface with filesystem and S3 backends.
//
// Keys are minted by NewImageKey and scoped by organization, so one
// tenant's uploads can never shadow another's:
//
//	key, err := uploads.NewImageKey(orgID, productID, header.Filename)
//	err = store.Put(ctx, key, file, header.Header.Get("Content-Type"))
//
// The S3 backend also works against MinIO by setting an endpoint and path
// style addressing.
package uploads
