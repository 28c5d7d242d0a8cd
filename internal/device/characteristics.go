package device

// CharacteristicID addresses one GATT characteristic. Both UUIDs are
// normalized so IDs compare with ==.
type CharacteristicID struct {
	Service        string
	Characteristic string
}

// NewCharacteristicID normalizes both UUIDs.
func NewCharacteristicID(service, characteristic string) (CharacteristicID, error) {
	svc, err := NormalizeUUID(service)
	if err != nil {
		return CharacteristicID{}, err
	}
	char, err := NormalizeUUID(characteristic)
	if err != nil {
		return CharacteristicID{}, err
	}
	return CharacteristicID{Service: svc, Characteristic: char}, nil
}

func mustCharacteristic(service, characteristic string) CharacteristicID {
	id, err := NewCharacteristicID(service, characteristic)
	if err != nil {
		panic(err)
	}
	return id
}

func (id CharacteristicID) String() string {
	return ShortenUUID(id.Service) + "/" + ShortenUUID(id.Characteristic)
}

// Speaker characteristics. Sound profile and channel share a service, as do
// volume and power-off.
var (
	VolumeCharacteristic       = mustCharacteristic("445b9ffb-348f-4e1b-a417-3559b8138390", "7649b19f-c605-46e2-98f8-6c1808e0cfb4")
	SoundProfileCharacteristic = mustCharacteristic("3bbed7cf-287c-4333-9abf-2f0fbf161c79", "57a394fb-6d89-4105-8f07-bf730338a9b2")
	ChannelCharacteristic      = mustCharacteristic("3bbed7cf-287c-4333-9abf-2f0fbf161c79", "7d0d651e-62ae-4ef2-a727-0e8f3e9b4dfb")
	TeamUpModeCharacteristic   = mustCharacteristic("46c69d1b-7194-46f0-837c-ab7a6b94566f", "37bffa18-7f5a-4c8d-8a2d-362866cedfad")
	PinCharacteristic          = mustCharacteristic("F5C26570-64EC-4906-B998-6A7302879A2B", "49535343-8841-43f4-a8d4-ecbe34729bb3")
	PowerOffCharacteristic     = mustCharacteristic("445b9ffb-348f-4e1b-a417-3559b8138390", "11ad501d-fa86-43cc-8d92-5a27ee672f1a")
)

// CharacteristicName returns a human-readable label for log fields.
func CharacteristicName(id CharacteristicID) string {
	switch id {
	case VolumeCharacteristic:
		return "volume"
	case SoundProfileCharacteristic:
		return "sound_profile"
	case ChannelCharacteristic:
		return "channel"
	case TeamUpModeCharacteristic:
		return "team_up_mode"
	case PinCharacteristic:
		return "pin"
	case PowerOffCharacteristic:
		return "power_off"
	default:
		return id.String()
	}
}
