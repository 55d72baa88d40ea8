//go:build darwin && !cgo

package service

import (
	"context"
	"errors"

	"parking-finder-cli/model"
)

func systemServicesEnabled() bool { return false }

func systemPermission() Permission { return PermissionDenied }

func systemLocation(context.Context) (model.Coordinates, error) {
	return model.Coordinates{}, errors.New("system location on darwin requires cgo enabled")
}
