package handler

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/yndnr/remotely/internal/core/domain"
)

func systemInfo() (domain.ResponseData, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return domain.ResponseData{}, err
	}
	family := "unix"
	if runtime.GOOS == "windows" {
		family = "windows"
	}
	return domain.ResponseData{
		Type: domain.ResSystemInfo,
		System: &domain.SystemInfo{
			Family:     family,
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			CurrentDir: cwd,
			MainSep:    string(filepath.Separator),
		},
	}, nil
}
