package generic

// Void is the empty value, for Result and command types that carry no payload.
type Void struct{}

func NewVoid() Void {
	return Void{}
}
