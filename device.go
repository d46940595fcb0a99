package oocsi

// deviceChannel is the well-known channel home-automation bridges listen
// on for device descriptions.
const deviceChannel = "heyOOCSI!"

// Valid light component parameters.
var (
	lightSpectra  = []string{"WHITE", "CCT", "RGB"}
	lightLEDTypes = []string{"RGB", "RGBW", "RGBWW", "CCT", "DIMMABLE", "ONOFF"}
)

// Device describes a prototyping device and its components for the
// heyOOCSI! discovery convention. Build it up with the Add* methods and
// publish it with Submit.
type Device struct {
	client     *Client
	name       string
	properties map[string]any
	components map[string]any
	location   map[string]any
}

// HeyOOCSI starts a device description. An empty name uses the client
// handle.
func (c *Client) HeyOOCSI(name string) *Device {
	if name == "" {
		name = c.Handle()
	}
	c.log.Debug().Str("device", name).Msg("created device")
	return &Device{
		client:     c,
		name:       name,
		properties: map[string]any{"device_id": c.Handle()},
		components: map[string]any{},
		location:   map[string]any{},
	}
}

// AddProperty attaches a free-form property. Chainable.
func (d *Device) AddProperty(name string, value any) *Device {
	d.properties[name] = value
	return d
}

// AddLocation attaches a named coordinate pair. Chainable.
func (d *Device) AddLocation(name string, latitude, longitude float64) *Device {
	d.location[name] = []float64{latitude, longitude}
	return d
}

// AddSensor declares a sensor component reporting on its own channel.
// Chainable.
func (d *Device) AddSensor(name, channel, sensorType, unit string, value float64, icon string) *Device {
	d.components[name] = map[string]any{
		"channel_name": channel,
		"type":         "sensor",
		"sensor_type":  sensorType,
		"unit":         unit,
		"value":        value,
		"mode":         "auto",
		"icon":         icon,
	}
	return d
}

// AddNumber declares a settable numeric component. Chainable.
func (d *Device) AddNumber(name, channel string, min, max float64, unit string, value float64, icon string) *Device {
	d.components[name] = map[string]any{
		"channel_name": channel,
		"type":         "number",
		"min_max":      []float64{min, max},
		"unit":         unit,
		"value":        value,
		"icon":         icon,
	}
	return d
}

// AddBinarySensor declares an on/off sensor component. Chainable.
func (d *Device) AddBinarySensor(name, channel, sensorType string, state bool, icon string) *Device {
	d.components[name] = map[string]any{
		"channel_name": channel,
		"type":         "binary_sensor",
		"sensor_type":  sensorType,
		"state":        state,
		"icon":         icon,
	}
	return d
}

// AddSwitch declares a switchable component. Chainable.
func (d *Device) AddSwitch(name, channel string, state bool, icon string) *Device {
	d.components[name] = map[string]any{
		"channel_name": channel,
		"type":         "switch",
		"state":        state,
		"icon":         icon,
	}
	return d
}

// AddLight declares a light component. Unknown LED types or spectra are
// logged and the component is registered anyway, matching how bridges
// treat unknown values. Chainable.
func (d *Device) AddLight(name, channel, ledType, spectrum string, state bool, brightness int, icon string) *Device {
	if !contains(lightLEDTypes, ledType) {
		d.client.log.Warn().Str("light", name).Str("led_type", ledType).Msg("unknown LED type")
	}
	if !contains(lightSpectra, spectrum) {
		d.client.log.Warn().Str("light", name).Str("spectrum", spectrum).Msg("unknown spectrum")
	}
	d.components[name] = map[string]any{
		"channel_name": channel,
		"type":         "light",
		"ledType":      ledType,
		"spectrum":     spectrum,
		"state":        state,
		"brightness":   brightness,
		"icon":         icon,
	}
	return d
}

// Submit publishes the device description to the heyOOCSI! channel.
func (d *Device) Submit() error {
	description := map[string]any{
		d.name: map[string]any{
			"properties": d.properties,
			"components": d.components,
			"location":   d.location,
		},
	}
	if err := d.client.Send(deviceChannel, description); err != nil {
		return err
	}
	d.client.log.Debug().Str("device", d.name).Msg("device description submitted")
	return nil
}

// SayHi is an alias for Submit kept for parity with other OOCSI clients.
func (d *Device) SayHi() error {
	return d.Submit()
}

func contains(list []string, x string) bool {
	for _, item := range list {
		if item == x {
			return true
		}
	}
	return false
}
