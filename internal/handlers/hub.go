package handlers

// disconnectSubject closes every socket authorized for subject.
func disconnectSubject(d Deps, subject string) {
	if subject == "" {
		return
	}
	if h := d.hub(); h != nil {
		h.Disconnect(subject)
	}
}

// notifySubject pushes an event to every socket authorized for subject.
func notifySubject(d Deps, subject, typ string, payload any) {
	if subject == "" {
		return
	}
	if h := d.hub(); h != nil {
		h.Broadcast(subject, typ, payload)
	}
}
