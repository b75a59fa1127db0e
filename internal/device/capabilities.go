package device

// Capabilities records which features a bound appliance supports.
// It is computed once per binding and never updated; a firmware change
// requires rebinding the appliance.
type Capabilities struct {
	Brightness     bool `json:"brightness"`
	NightLight     bool `json:"night_light"`
	NightMode      bool `json:"night_mode"`
	AutoMode       bool `json:"auto_mode"`
	HumidityTarget bool `json:"humidity_target"`
	WaterLevel     bool `json:"water_level"`
	Temperature    bool `json:"temperature"`
	AirQuality     bool `json:"air_quality"`
	GermShield     bool `json:"germ_shield"`
	FilterUsage    bool `json:"filter_usage"`
	ChildLock      bool `json:"child_lock"`
	FanSpeed       bool `json:"fan_speed"`
}

// DetectCapabilities derives capabilities from key presence only.
// Values are ignored: a brightness of 0 still means the device has a display.
func DetectCapabilities(state State, sensors Sensors) Capabilities {
	hasKey := func(k Key) bool {
		_, ok := state[k]
		return ok
	}
	hasSensor := func(s Sensor) bool {
		_, ok := sensors[s]
		return ok
	}

	return Capabilities{
		Brightness:     hasKey(KeyBrightness),
		NightLight:     hasKey(KeyNightLight),
		NightMode:      hasKey(KeyNightMode),
		AutoMode:       hasKey(KeyAutoMode),
		HumidityTarget: hasKey(KeyTargetHumidity) || hasKey(KeyMistTarget),
		WaterLevel:     hasSensor(SensorWaterLacks),
		Temperature:    hasSensor(SensorTemperature),
		AirQuality:     hasSensor(SensorPM25) || hasSensor(SensorPM10) || hasSensor(SensorVOC),
		GermShield:     hasKey(KeyGermShield),
		FilterUsage:    hasSensor(SensorFilterLife),
		ChildLock:      hasKey(KeyChildLock),
		FanSpeed:       hasKey(KeyFanSpeed),
	}
}
