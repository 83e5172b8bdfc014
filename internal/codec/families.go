package codec

// Family tables transcribed from the vendor protocol documentation. Sensor
// ids are the numeric MQTT topic leaves; "4.x" endpoints are measurements and
// settings, "5.x" endpoints are states and modes.

var productionRateOptions = []string{
	"0.25x", "0.5x", "0.75x", "1.0x", "1.25x", "1.5x", "2x", "3x", "5x", "10x",
}

// sensorsAutomaticBase is shared by the Automatic SALT and Automatic Cl-pH
// families.
func sensorsAutomaticBase() map[string]SensorSpec {
	return map[string]SensorSpec{
		"4.2": {
			Name: "pH Target", Coefficient: 10, Entity: EntitySelect,
			Options: optFloatRange(6.2, 8.2, 0.1, 1),
		},
		"4.3": {
			Name: "pH Alert Max", Coefficient: 10, Entity: EntitySelect,
			Options: optFloatRange(7.2, 8.7, 0.1, 1),
		},
		"4.4": {
			Name: "pH Alert Min", Coefficient: 10, Entity: EntitySelect,
			Options: optFloatRange(5.7, 7.2, 0.1, 1),
		},
		"4.5":  {Name: "pH Dosing Control Time Interval", Coefficient: 1, Unit: "min", Entity: EntitySensor},
		"4.7":  {Name: "Minutes Counter / Reset every hour", Coefficient: 1, Unit: "min", Entity: EntitySensor},
		"4.26": {
			Name: "Redox Alert Max", Coefficient: 1, Unit: "mV", Entity: EntitySelect,
			Options: optIntRange(995, 495, -5),
		},
		"4.27": {
			Name: "Redox Alert Min", Coefficient: 1, Unit: "mV", Entity: EntitySelect,
			Options: optIntRange(850, 195, -5),
		},
		"4.28": {
			Name: "Redox Target", Coefficient: 1, Unit: "mV", Entity: EntitySelect,
			Options: optIntRange(950, 395, -5),
		},
		"4.34": {Name: "Minimal Approach to Control the pH", Coefficient: 100, Entity: EntitySensor},
		"4.37": {
			Name: "Start Delay", Coefficient: 1, Unit: "min", Entity: EntitySelect,
			Options: optIntRange(1, 61, 1),
		},
		"4.38":  {Name: "pH Dosing Cycle", Coefficient: 1, Unit: "s", Entity: EntitySensor},
		"4.47":  {Name: "pH Dosing Speed", Coefficient: 1, Unit: "%", Entity: EntitySensor},
		"4.67":  {Name: "SW Version", Coefficient: 100, Entity: EntitySensor},
		"4.68":  {Name: "SW Date", Coefficient: -1, Entity: EntitySensor},
		"4.69":  {Name: "Hourly Counter / Reset every 24h", Coefficient: 1, Unit: "h", Entity: EntitySensor},
		"4.82":  {Name: "Redox", Coefficient: 1, Unit: "mV", Entity: EntitySensor},
		"4.89":  {Name: "pH Dosing Rate", Coefficient: 1, Unit: "%", Entity: EntitySensor},
		"4.98":  {Name: "Temperature", Coefficient: 10, Unit: "°C", Entity: EntitySensor},
		"4.102": {Name: "Conductivity", Coefficient: 10, Unit: "mS/cm", Entity: EntitySensor},
		"4.107": {Name: "Battery Voltage", Coefficient: 100, Unit: "V", Entity: EntitySensor},
		"4.182": {Name: "pH", Coefficient: 10, Entity: EntitySensor},
		"5.3": {
			Name: "pH Production Rate", Entity: EntitySelect,
			Options: productionRateOptions,
		},
		"5.80": {Name: "pH Minus Canister Status", Entity: EntitySensor},
		"5.98": {Name: "Filtration", Entity: EntitySensor},
	}
}

func sensorsAutomaticSalt() map[string]SensorSpec {
	sensors := sensorsAutomaticBase()
	sensors["4.51"] = SensorSpec{Name: "Polarity Reversal Times", Coefficient: 1, Unit: "min", Entity: EntitySensor}
	sensors["4.66"] = SensorSpec{
		Name: "Minimum Redox Produktion", Coefficient: 1, Unit: "%", Entity: EntitySelect,
		Options: optIntRange(100, 10, -5),
	}
	sensors["4.91"] = SensorSpec{Name: "Electrolyzer Production Rate", Coefficient: 1, Unit: "%", Entity: EntitySensor}
	sensors["4.100"] = SensorSpec{Name: "Salt", Coefficient: 10, Unit: "g/l", Entity: EntitySensor}
	sensors["4.104"] = SensorSpec{Name: "Electrolyzer Voltage", Coefficient: 10, Unit: "V", Entity: EntitySensor}
	sensors["4.105"] = SensorSpec{Name: "Electrolyzer Current", Coefficient: 10, Unit: "A", Entity: EntitySensor}
	sensors["4.112"] = SensorSpec{Name: "Time Before Next Polarity Reversal", Coefficient: 1, Unit: "s", Entity: EntitySensor}
	sensors["4.119"] = SensorSpec{Name: "Time Since Polarity Reversal", Coefficient: 1, Unit: "s", Entity: EntitySensor}
	sensors["4.144"] = SensorSpec{
		Name: "Salt Preferred Level", Coefficient: 10, Unit: "g/l", Entity: EntitySelect,
		Options: optFloatRange(1.0, 5.0, 0.1, 1),
	}
	sensors["5.40"] = SensorSpec{
		Name: "Redox ON / OFF", Entity: EntitySelect,
		Options: []string{"On", "Off"},
	}
	sensors["5.41"] = SensorSpec{
		Name: "Redox Mode", Entity: EntitySelect,
		Options: []string{"Auto", "Auto Plus", "Constant production"},
	}
	return sensors
}

func sensorsAutomaticClPH() map[string]SensorSpec {
	sensors := sensorsAutomaticBase()
	sensors["4.90"] = SensorSpec{Name: "Cl Dosing Rate", Coefficient: 1, Unit: "%", Entity: EntitySensor}
	sensors["5.175"] = SensorSpec{
		Name: "Cl Adjust Dosing Amount", Coefficient: 1, Unit: "%", Entity: EntitySelect,
		Options: productionRateOptions,
	}
	sensors["5.169"] = SensorSpec{Name: "Cl Canister Status", Entity: EntitySensor}
	return sensors
}

func sensorsPM5Chlorine() map[string]SensorSpec {
	return map[string]SensorSpec{
		"4.3001": {
			Name: "pH Target", Coefficient: 100, Entity: EntitySelect,
			Options: optFloatRange(6.2, 8.2, 0.1, 1),
		},
		"4.3002": {
			Name: "pH Alert Min", Coefficient: 100, Entity: EntitySelect,
			Options: optFloatRange(5.7, 7.2, 0.1, 1),
		},
		"4.3003": {
			Name: "pH Alert Max", Coefficient: 100, Entity: EntitySelect,
			Options: optFloatRange(7.2, 8.7, 0.1, 1),
		},
		"4.3049": {
			Name: "Redox Target", Coefficient: 1, Unit: "mV", Entity: EntitySelect,
			Options: optIntRange(950, 395, -5),
		},
		"4.3051": {
			Name: "Redox Alert Min", Coefficient: 1, Unit: "mV", Entity: EntitySelect,
			Options: optIntRange(850, 195, -5),
		},
		"4.3053": {
			Name: "Redox Alert Max", Coefficient: 1, Unit: "mV", Entity: EntitySelect,
			Options: optIntRange(995, 495, -5),
		},
		"4.4001": {Name: "pH", Coefficient: 100, Entity: EntitySensor},
		"4.4022": {Name: "Redox", Coefficient: 1, Unit: "mV", Entity: EntitySensor},
		"4.4033": {Name: "Water Temperature", Coefficient: 10, Unit: "°C", Entity: EntitySensor},
		"4.4069": {Name: "Air Temperature", Coefficient: 10, Unit: "°C", Entity: EntitySensor},
		"4.4132": {Name: "Active Alarms", Coefficient: 1, Entity: EntitySensor},
		"5.5433": {Name: "Out 1", Entity: EntitySelect, Options: []string{"On", "Off", "Auto"}},
		"5.5434": {Name: "Out 2", Entity: EntitySelect, Options: []string{"On", "Off", "Auto"}},
		"5.5435": {Name: "Out 3", Entity: EntitySelect, Options: []string{"On", "Off", "Auto"}},
		"5.5436": {Name: "Out 4", Entity: EntitySelect, Options: []string{"On", "Off", "Auto"}},
		"5.6012": {Name: "pH Pump", Entity: EntitySensor},
		"5.6015": {Name: "Redox Pump Status", Entity: EntitySensor},
		"5.6064": {Name: "pH Canister Level", Entity: EntitySensor},
		"5.6065": {Name: "pH Status", Entity: EntitySensor},
		"5.6068": {Name: "Redox Canister Level", Entity: EntitySensor},
		"5.6069": {Name: "Redox Status", Entity: EntitySensor},
	}
}

var (
	schemaAutomaticSalt = &Schema{
		DeviceType:  "Automatic SALT",
		Sensors:     sensorsAutomaticSalt(),
		valueToCode: valueToCodeAutomatic,
	}
	schemaAutomaticClPH = &Schema{
		DeviceType:  "Automatic Cl-pH",
		Sensors:     sensorsAutomaticClPH(),
		valueToCode: valueToCodeAutomatic,
	}
	schemaPM5Chlorine = &Schema{
		DeviceType:  "PM5 Chlorine",
		Sensors:     sensorsPM5Chlorine(),
		valueToCode: valueToCodePM5,
	}
)
