// Package get downloads archives and plan files with go-getter, so both can
// live on local disk, behind http(s), in s3 or in a git repository.
package get

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CacheDir is where remote plan sources are cached between runs.
const CacheDir = ".launchpad"

// File downloads the single file at src to dst.
func File(ctx context.Context, src, dst string) error {
	pwd, err := os.Getwd()
	if err != nil {
		return errors.WithStack(err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", dst)
	}

	get := &getter.Client{
		Ctx:     ctx,
		Src:     src,
		Dst:     dst,
		Pwd:     pwd,
		Mode:    getter.ClientModeFile,
		Options: []getter.ClientOption{},
	}

	logrus.Tracef("client: %+v", *get)

	if err := get.Get(); err != nil {
		return errors.Wrapf(err, "fetching %s", src)
	}
	return nil
}

// IsRemote reports whether src needs go-getter, i.e. it is not a plain path on
// the local filesystem.
func IsRemote(src string) bool {
	if strings.Contains(src, "::") || strings.Contains(src, "://") {
		return true
	}
	_, err := os.Stat(src)
	return err != nil && strings.Contains(src, "//")
}

// Bytes reads a file out of a go-getter source written as $repo//$path, like
// github.com/example/apps//launch.yaml?ref=v1. Local paths are read directly.
// Remote directories are cached under CacheDir.
func Bytes(ctx context.Context, src string) ([]byte, error) {
	if !IsRemote(src) {
		bs, err := ioutil.ReadFile(src)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return bs, nil
	}

	srcDir, file, query, err := split(src)
	if err != nil {
		return nil, err
	}

	dst := filepath.Join(CacheDir, cacheKey(srcDir, query))

	stat, err := os.Stat(dst)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat: %v", err)
	}
	cached := err == nil
	if cached && !stat.IsDir() {
		return nil, fmt.Errorf("%s is not directory. please remove it so that launchpad could use it for caching", dst)
	}

	if !cached {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.WithStack(err)
		}

		u := srcDir
		if query != "" {
			u = srcDir + "?" + query
		}
		logrus.Debugf("downloading %s to %s", u, dst)

		get := &getter.Client{
			Ctx:  ctx,
			Src:  u,
			Dst:  dst,
			Pwd:  pwd,
			Mode: getter.ClientModeDir,
		}
		if err := get.Get(); err != nil {
			return nil, fmt.Errorf("get: %v", err)
		}
	}

	bs, err := ioutil.ReadFile(filepath.Join(dst, file))
	if err != nil {
		return nil, fmt.Errorf("read file: %v", err)
	}
	return bs, nil
}

func split(src string) (dir, file, query string, err error) {
	parts := strings.Split(src, "//")
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("format the src description with $repo//$path, like github.com/example/apps//launch.yaml: %s", src)
	}
	last := len(parts) - 1

	fileAndQuery := strings.SplitN(parts[last], "?", 2)
	file = fileAndQuery[0]
	var fileQuery string
	if len(fileAndQuery) > 1 {
		fileQuery = fileAndQuery[1]
	}

	dirAndQuery := strings.SplitN(strings.Join(parts[:last], "//"), "?", 2)
	dir = dirAndQuery[0]
	var dirQuery string
	if len(dirAndQuery) > 1 {
		dirQuery = dirAndQuery[1]
	}

	var qs []string
	for _, q := range []string{fileQuery, dirQuery} {
		if q != "" {
			qs = append(qs, q)
		}
	}
	return dir, file, strings.Join(qs, "&"), nil
}

func cacheKey(dir, query string) string {
	replacer := strings.NewReplacer("/", "_", ".", "_", ":", "_")
	key := replacer.Replace(dir)
	if query != "" {
		key = fmt.Sprintf("%s.%s", key, strings.Replace(query, "&", "_", -1))
	}
	return key
}
