package device

// Device identifiers reported during enumeration.
const (
	IdentifierMaster         uint16 = 13
	IdentifierAmbientLight   uint16 = 21
	IdentifierHumidity       uint16 = 27
	IdentifierLCD20x4        uint16 = 212
	IdentifierBarometer      uint16 = 221
	IdentifierAmbientLightV2 uint16 = 259
	IdentifierHumidityV2     uint16 = 283
	IdentifierBarometerV2    uint16 = 2117
	IdentifierAmbientLightV3 uint16 = 2131
)

// Kind is the closed set of module types the controller knows.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindLCD20x4
	KindAmbientLight
	KindAmbientLightV2
	KindAmbientLightV3
	KindHumidity
	KindHumidityV2
	KindBarometer
	KindBarometerV2
	KindMaster
)

var kindIdentifiers = map[Kind]uint16{
	KindLCD20x4:        IdentifierLCD20x4,
	KindAmbientLight:   IdentifierAmbientLight,
	KindAmbientLightV2: IdentifierAmbientLightV2,
	KindAmbientLightV3: IdentifierAmbientLightV3,
	KindHumidity:       IdentifierHumidity,
	KindHumidityV2:     IdentifierHumidityV2,
	KindBarometer:      IdentifierBarometer,
	KindBarometerV2:    IdentifierBarometerV2,
	KindMaster:         IdentifierMaster,
}

var identifierKinds = func() map[uint16]Kind {
	m := make(map[uint16]Kind, len(kindIdentifiers))
	for k, id := range kindIdentifiers {
		m[id] = k
	}
	return m
}()

// KindOf maps a device identifier to its Kind. Unknown identifiers return
// KindUnknown and false.
func KindOf(deviceIdentifier uint16) (Kind, bool) {
	k, ok := identifierKinds[deviceIdentifier]
	return k, ok
}

// DeviceIdentifier returns the identifier for k, or 0 for KindUnknown.
func (k Kind) DeviceIdentifier() uint16 {
	return kindIdentifiers[k]
}

// IsDisplay reports whether k is the display module.
func (k Kind) IsDisplay() bool {
	return k == KindLCD20x4
}

// IsSensor reports whether k produces telemetry.
func (k Kind) IsSensor() bool {
	switch k {
	case KindAmbientLight, KindAmbientLightV2, KindAmbientLightV3,
		KindHumidity, KindHumidityV2,
		KindBarometer, KindBarometerV2:
		return true
	default:
		return false
	}
}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLCD20x4:
		return "LCD20x4"
	case KindAmbientLight:
		return "AmbientLight"
	case KindAmbientLightV2:
		return "AmbientLightV2"
	case KindAmbientLightV3:
		return "AmbientLightV3"
	case KindHumidity:
		return "Humidity"
	case KindHumidityV2:
		return "HumidityV2"
	case KindBarometer:
		return "Barometer"
	case KindBarometerV2:
		return "BarometerV2"
	case KindMaster:
		return "Master"
	default:
		return "Unknown"
	}
}
