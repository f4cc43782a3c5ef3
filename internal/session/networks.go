package session

import "lottery/internal/models"

// Currency describes a network's native currency.
type Currency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// NetworkDescriptor is what a host needs to add a network it does not know.
type NetworkDescriptor struct {
	ChainID        models.NetworkID `json:"chainId"`
	Name           string           `json:"chainName"`
	NativeCurrency Currency         `json:"nativeCurrency"`
	RPCURLs        []string         `json:"rpcUrls"`
	ExplorerURLs   []string         `json:"blockExplorerUrls"`
}

var ether = Currency{Name: "Ether", Symbol: "ETH", Decimals: 18}

// KnownNetworks are the descriptors offered for registration.
var KnownNetworks = []NetworkDescriptor{
	{
		ChainID:        "0xaa36a7",
		Name:           "Sepolia",
		NativeCurrency: Currency{Name: "Sepolia Ether", Symbol: "SepoliaETH", Decimals: 18},
		RPCURLs:        []string{"https://rpc.sepolia.org"},
		ExplorerURLs:   []string{"https://sepolia.etherscan.io"},
	},
	{
		ChainID:        "0x7a69",
		Name:           "Hardhat Local",
		NativeCurrency: ether,
		RPCURLs:        []string{"http://127.0.0.1:8545"},
	},
}

// Lookup finds the descriptor for id.
func Lookup(id models.NetworkID) (NetworkDescriptor, bool) {
	for _, d := range KnownNetworks {
		if d.ChainID.Equal(id) {
			return d, true
		}
	}
	return NetworkDescriptor{}, false
}
