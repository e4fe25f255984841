package navigator

type ProxyGetter interface {

	// Get proxy.
	//
	// Returns proxy as string and error if has
	GetProxy() (string, error)
}

// Same proxy for every launch
type StaticProxy string

func (p StaticProxy) GetProxy() (string, error) {
	return string(p), nil
}
