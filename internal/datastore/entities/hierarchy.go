package entities

import "time"

// Actuator states as stored on Device.ActuatorState and sent in commands.
const (
	ActuatorOn  = "on"
	ActuatorOff = "off"
)

// Warehouse is the top of the site hierarchy.
type Warehouse struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (Warehouse) TableName() string {
	return "warehouses"
}

// Area is a zone inside a warehouse.
type Area struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	WarehouseID uint       `gorm:"not null;index" json:"warehouse_id"`
	Name        string     `gorm:"size:255;not null" json:"name"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	Warehouse   *Warehouse `gorm:"foreignKey:WarehouseID;constraint:OnDelete:CASCADE" json:"warehouse,omitempty"`
}

// TableName returns the table name for GORM.
func (Area) TableName() string {
	return "areas"
}

// Device is a sensor, camera or actuator registered on the broker.
// ActuatorState is only meaningful for device types that accept commands.
type Device struct {
	DeviceID      string    `gorm:"primaryKey;size:64" json:"device_id"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	Type          string    `gorm:"size:50;not null;index" json:"type"`
	SystemType    string    `gorm:"size:50;not null;index" json:"system_type"`
	AreaID        *uint     `gorm:"index" json:"area_id"`
	ActuatorState string    `gorm:"size:8;not null;default:'off'" json:"actuator_state"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	Area          *Area     `gorm:"foreignKey:AreaID;constraint:OnDelete:SET NULL" json:"area,omitempty"`
}

// TableName returns the table name for GORM.
func (Device) TableName() string {
	return "devices"
}

// AreaName returns the area name or "" when the hierarchy was not loaded.
func (d *Device) AreaName() string {
	if d.Area == nil {
		return ""
	}
	return d.Area.Name
}

// WarehouseName returns the warehouse name or "" when the hierarchy was not loaded.
func (d *Device) WarehouseName() string {
	if d.Area == nil || d.Area.Warehouse == nil {
		return ""
	}
	return d.Area.Warehouse.Name
}
