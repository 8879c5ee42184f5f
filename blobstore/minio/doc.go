// Package minio backs a blobstore.BlobStore with MinIO or any other
// S3-compatible endpoint via minio-go.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4(accessKey, secretKey, ""),
//	})
//	store := miniostore.NewStore(client, "experiments", "seals/")
//
// Objects are streamed on Create and fetched with range reads on
// ReadAt, so shards never have to fit in memory twice.
package minio
