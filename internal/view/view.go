package view

import "github.com/OKaluzny/voting-dapp/internal/lifecycle"

// Inputs are the observable facts the view is derived from.
type Inputs struct {
	WalletConnected bool
	State           lifecycle.State
	Refreshing      bool
}

// State is what the UI renders: which triggers are enabled and whether a
// loading indicator is shown.
type State struct {
	WalletConnected bool
	ActionsEnabled  bool
	Loading         bool
}

// Project derives the view state. It holds no state of its own.
func Project(in Inputs) State {
	return State{
		WalletConnected: in.WalletConnected,
		ActionsEnabled:  in.WalletConnected && in.State == lifecycle.Idle,
		Loading:         in.State.InFlight() || in.Refreshing,
	}
}

// ConnectLabel is the text of the connect button.
func (s State) ConnectLabel() string {
	if s.WalletConnected {
		return "Wallet Connected"
	}
	return "Connect Wallet"
}

// InputEnabled reports whether the candidate name input accepts text.
func (s State) InputEnabled() bool {
	return !s.Loading
}
