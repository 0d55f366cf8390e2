//go:build !linux

package fileutil

import "errors"

var errNoReplaceUnsupported = errors.New("rename no-replace unsupported")

func renameNoReplace(string, string) error {
	return errNoReplaceUnsupported
}
