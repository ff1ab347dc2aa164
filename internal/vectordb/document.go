package vectordb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Document is one unit of source text: a PDF page or a whole text file.
type Document struct {
	// Source is the file path relative to the loaded directory or prefix.
	Source string
	Page   int
	Text   string
}

// Loader reads every supported document under src.
type Loader interface {
	Load(ctx context.Context, src string) ([]Document, error)
}

var supportedExt = map[string]bool{".pdf": true, ".txt": true, ".md": true}

// ErrObjectStorageDisabled is returned for s3:// sources when no object storage client is configured.
var ErrObjectStorageDisabled = errors.New("object storage is not configured")

// FileLoader reads documents from a local directory tree.
type FileLoader struct{}

func (FileLoader) Load(ctx context.Context, dir string) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("document directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document directory: %s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && supportedExt[strings.ToLower(filepath.Ext(p))] {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var docs []Document
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			return nil, err
		}
		parsed, err := parseDocument(filepath.ToSlash(rel), data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		docs = append(docs, parsed...)
	}
	return docs, nil
}

// ObjectLoader reads documents from s3://bucket/prefix sources.
type ObjectLoader struct {
	client *minio.Client
}

func NewObjectClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
}

func NewObjectLoader(client *minio.Client) *ObjectLoader {
	return &ObjectLoader{client: client}
}

func (o *ObjectLoader) Load(ctx context.Context, src string) ([]Document, error) {
	bucket, prefix, err := splitObjectURL(src)
	if err != nil {
		return nil, err
	}

	var keys []string
	for obj := range o.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if supportedExt[strings.ToLower(path.Ext(obj.Key))] {
			keys = append(keys, obj.Key)
		}
	}
	sort.Strings(keys)

	var docs []Document
	for _, key := range keys {
		obj, err := o.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(obj)
		_ = obj.Close()
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", bucket, key, err)
		}
		parsed, err := parseDocument(objectSource(prefix, key), data)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", bucket, key, err)
		}
		docs = append(docs, parsed...)
	}
	return docs, nil
}

// objectSource names a document by its key below prefix, so files that share a
// base name in different folders stay distinct.
func objectSource(prefix, key string) string {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
	if rel == "" {
		return path.Base(key)
	}
	return rel
}

// RoutingLoader sends s3:// sources to Object and everything else to Local.
type RoutingLoader struct {
	Local  Loader
	Object Loader
}

func (r RoutingLoader) Load(ctx context.Context, src string) ([]Document, error) {
	if strings.HasPrefix(src, "s3://") {
		if r.Object == nil {
			return nil, ErrObjectStorageDisabled
		}
		return r.Object.Load(ctx, src)
	}
	local := r.Local
	if local == nil {
		local = FileLoader{}
	}
	return local.Load(ctx, src)
}

func splitObjectURL(src string) (string, string, error) {
	rest, ok := strings.CutPrefix(src, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an object storage url: %s", src)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %s", src)
	}
	return bucket, prefix, nil
}

func parseDocument(name string, data []byte) ([]Document, error) {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return parsePDF(name, data)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return []Document{{Source: name, Text: text}}, nil
}

func parsePDF(name string, data []byte) ([]Document, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	var docs []Document
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		docs = append(docs, Document{Source: name, Page: i, Text: text})
	}
	return docs, nil
}
