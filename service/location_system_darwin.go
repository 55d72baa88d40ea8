//go:build darwin && cgo

package service

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework Foundation -framework CoreLocation

#import <CoreFoundation/CoreFoundation.h>
#import <CoreLocation/CoreLocation.h>
#import <Foundation/Foundation.h>
#import <stdlib.h>
#import <string.h>

enum {
	PARKING_LOC_OK = 0,
	PARKING_LOC_FAILED = 1,
	PARKING_LOC_DISABLED = 2,
	PARKING_LOC_DENIED = 3,
};

static BOOL parking_is_authorized(CLAuthorizationStatus status) {
	return status == kCLAuthorizationStatusAuthorizedAlways || status == kCLAuthorizationStatusAuthorized;
}

static BOOL parking_is_refused(CLAuthorizationStatus status) {
	return status == kCLAuthorizationStatusDenied || status == kCLAuthorizationStatusRestricted;
}

static CLAuthorizationStatus parking_auth_status(CLLocationManager *manager) {
	if ([manager respondsToSelector:@selector(authorizationStatus)]) {
		return manager.authorizationStatus;
	}
#pragma clang diagnostic push
#pragma clang diagnostic ignored "-Wdeprecated-declarations"
	return [CLLocationManager authorizationStatus];
#pragma clang diagnostic pop
}

static int parking_services_enabled(void) {
	return [CLLocationManager locationServicesEnabled] ? 1 : 0;
}

static int parking_permission_refused(void) {
	@autoreleasepool {
		CLLocationManager *manager = [[CLLocationManager alloc] init];
		return parking_is_refused(parking_auth_status(manager)) ? 1 : 0;
	}
}

@interface ParkingLocationDelegate : NSObject<CLLocationManagerDelegate>
@property(nonatomic, strong) CLLocation *location;
@property(nonatomic, strong) NSError *error;
@property(nonatomic, assign) BOOL denied;
@property(nonatomic, assign) BOOL finished;
@end

@implementation ParkingLocationDelegate

- (void)finish {
	if (!self.finished) {
		self.finished = YES;
		CFRunLoopStop(CFRunLoopGetCurrent());
	}
}

- (void)handleStatus:(CLAuthorizationStatus)status manager:(CLLocationManager *)manager {
	if (parking_is_authorized(status)) {
		[manager requestLocation];
		return;
	}
	if (parking_is_refused(status)) {
		self.denied = YES;
		[self finish];
	}
}

- (void)locationManager:(CLLocationManager *)manager didUpdateLocations:(NSArray<CLLocation *> *)locations {
	self.location = [locations lastObject];
	[self finish];
}

- (void)locationManager:(CLLocationManager *)manager didFailWithError:(NSError *)error {
	if (error.code == kCLErrorDenied) {
		self.denied = YES;
	}
	self.error = error;
	[self finish];
}

- (void)locationManagerDidChangeAuthorization:(CLLocationManager *)manager {
	[self handleStatus:parking_auth_status(manager) manager:manager];
}

- (void)locationManager:(CLLocationManager *)manager didChangeAuthorizationStatus:(CLAuthorizationStatus)status {
	[self handleStatus:status manager:manager];
}

@end

static int parking_current_position(double *lat, double *lng, double *accuracy, char **err_out) {
	@autoreleasepool {
		if (![CLLocationManager locationServicesEnabled]) {
			return PARKING_LOC_DISABLED;
		}

		CLLocationManager *manager = [[CLLocationManager alloc] init];
		ParkingLocationDelegate *delegate = [[ParkingLocationDelegate alloc] init];
		manager.delegate = delegate;
		manager.desiredAccuracy = kCLLocationAccuracyNearestTenMeters;

		CLAuthorizationStatus status = parking_auth_status(manager);
		if (parking_is_refused(status)) {
			return PARKING_LOC_DENIED;
		}
		if (status == kCLAuthorizationStatusNotDetermined) {
			[manager requestWhenInUseAuthorization];
		}
		[manager requestLocation];

		NSTimeInterval remaining = 12.0;
		while (!delegate.finished && remaining > 0) {
			CFRunLoopRunInMode(kCFRunLoopDefaultMode, 0.25, false);
			remaining -= 0.25;
		}

		if (delegate.denied) {
			return PARKING_LOC_DENIED;
		}
		if (!delegate.finished) {
			*err_out = strdup("timed out waiting for system location");
			return PARKING_LOC_FAILED;
		}
		if (delegate.error != nil || delegate.location == nil) {
			const char *msg = delegate.error != nil ? [[delegate.error localizedDescription] UTF8String] : NULL;
			*err_out = strdup(msg != NULL && strlen(msg) > 0 ? msg : "system location request returned no coordinates");
			return PARKING_LOC_FAILED;
		}

		*lat = delegate.location.coordinate.latitude;
		*lng = delegate.location.coordinate.longitude;
		*accuracy = delegate.location.horizontalAccuracy;
		return PARKING_LOC_OK;
	}
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"parking-finder-cli/model"
)

func systemServicesEnabled() bool {
	return C.parking_services_enabled() == 1
}

func systemPermission() Permission {
	if C.parking_permission_refused() == 1 {
		return PermissionDenied
	}
	// Not yet determined counts as granted: the lookup itself shows the prompt.
	return PermissionGranted
}

func systemLocation(ctx context.Context) (model.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return model.Coordinates{}, err
	}
	position, err := systemLocationBlocking()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.Coordinates{}, ctxErr
	}
	return position, err
}

func systemLocationBlocking() (model.Coordinates, error) {
	var lat, lng, accuracy C.double
	var errMsg *C.char

	status := C.parking_current_position(&lat, &lng, &accuracy, &errMsg)
	if errMsg != nil {
		defer C.free(unsafe.Pointer(errMsg))
	}
	switch status {
	case C.PARKING_LOC_OK:
	case C.PARKING_LOC_DISABLED:
		return model.Coordinates{}, ErrLocationDisabled
	case C.PARKING_LOC_DENIED:
		return model.Coordinates{}, ErrPermissionDenied
	default:
		message := ""
		if errMsg != nil {
			message = strings.TrimSpace(C.GoString(errMsg))
		}
		if message == "" {
			message = "unknown error"
		}
		return model.Coordinates{}, fmt.Errorf("macos corelocation failed: %s", compactErrorSnippet(message))
	}

	position := model.Coordinates{
		Latitude:  float64(lat),
		Longitude: float64(lng),
		AccuracyM: float64(accuracy),
		Source:    "system",
	}
	if position.IsZero() {
		return model.Coordinates{}, errors.New("system location returned empty coordinates")
	}
	return position, nil
}
