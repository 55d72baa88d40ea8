//go:build !darwin

package service

import (
	"context"
	"errors"

	"parking-finder-cli/model"
)

func systemServicesEnabled() bool { return false }

func systemPermission() Permission { return PermissionDenied }

func systemLocation(context.Context) (model.Coordinates, error) {
	return model.Coordinates{}, errors.New("system location is not supported on this OS")
}
