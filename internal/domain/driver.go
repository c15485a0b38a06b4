package domain

// DriverStatus represents the current availability of a driver.
type DriverStatus string

const (
	DriverStatusOnline  DriverStatus = "ONLINE"
	DriverStatusOffline DriverStatus = "OFFLINE"
	DriverStatusOnTrip  DriverStatus = "ON_TRIP"
)

// Driver represents a driver in the system.
type Driver struct {
	ID           string
	Name         string
	Phone        string
	Status       DriverStatus
	ActiveRideID string // empty when the driver holds no ride
}
