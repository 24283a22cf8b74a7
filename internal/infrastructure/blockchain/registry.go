package blockchain

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go/rpc"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
)

var (
	beforeGetEVMClientWriteLockHook = func(string) {}
	beforeAdapterWriteLockHook      = func(string) {}
	newSolanaRPC                    = func(rpcURL string) solanaRPC { return rpc.New(rpcURL) }
)

// Registry resolves chain names to adapters, constructing each one lazily from its chain config.
type Registry struct {
	chains     map[string]entities.Chain
	adapters   map[string]ChainAdapter
	evmClients map[string]*EVMClient
	mu         sync.RWMutex
}

// NewRegistry creates a registry for the configured chains
func NewRegistry(chains []entities.Chain) *Registry {
	r := &Registry{
		chains:     make(map[string]entities.Chain, len(chains)),
		adapters:   make(map[string]ChainAdapter),
		evmClients: make(map[string]*EVMClient),
	}
	for _, c := range chains {
		r.chains[normalizeChain(c.Name)] = c
	}
	return r
}

// Chain returns the configuration of a supported chain
func (r *Registry) Chain(name string) (entities.Chain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chains[normalizeChain(name)]
	if !ok {
		return entities.Chain{}, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedChain, name)
	}
	return c, nil
}

// Chains returns every configured chain sorted by name
func (r *Registry) Chains() []entities.Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entities.Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Adapter returns the adapter for a chain, creating it on first use
func (r *Registry) Adapter(name string) (ChainAdapter, error) {
	key := normalizeChain(name)

	r.mu.RLock()
	adapter, ok := r.adapters[key]
	chain, known := r.chains[key]
	r.mu.RUnlock()
	if ok {
		return adapter, nil
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedChain, name)
	}

	beforeAdapterWriteLockHook(key)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double check
	if adapter, ok := r.adapters[key]; ok {
		return adapter, nil
	}

	adapter, err := r.buildAdapter(chain)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", chain.Name, err)
	}
	r.adapters[key] = adapter
	return adapter, nil
}

// RegisterAdapter injects/overrides the adapter for a chain.
func (r *Registry) RegisterAdapter(chain entities.Chain, adapter ChainAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalizeChain(chain.Name)
	r.chains[key] = chain
	r.adapters[key] = adapter
}

// GetEVMClient returns an EVM client for the given RPC URL
// If a client already exists for the URL, it returns the cached client
func (r *Registry) GetEVMClient(rpcURL string) (*EVMClient, error) {
	r.mu.RLock()
	client, ok := r.evmClients[rpcURL]
	r.mu.RUnlock()
	if ok {
		return client, nil
	}

	beforeGetEVMClientWriteLockHook(rpcURL)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evmClientLocked(rpcURL)
}

// RegisterEVMClient injects/overrides cached client for a specific rpcURL.
// Useful for deterministic unit tests.
func (r *Registry) RegisterEVMClient(rpcURL string, client *EVMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evmClients[rpcURL] = client
}

// evmClientLocked requires r.mu held for writing.
func (r *Registry) evmClientLocked(rpcURL string) (*EVMClient, error) {
	if client, ok := r.evmClients[rpcURL]; ok {
		return client, nil
	}
	newClient, err := NewEVMClient(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create EVM client: %w", err)
	}
	r.evmClients[rpcURL] = newClient
	return newClient, nil
}

// buildAdapter requires r.mu held for writing.
func (r *Registry) buildAdapter(chain entities.Chain) (ChainAdapter, error) {
	switch chain.Type {
	case entities.ChainTypeEVM:
		client, err := r.evmClientLocked(chain.RPCURL)
		if err != nil {
			return nil, err
		}
		return NewEVMAdapter(chain, client), nil
	case entities.ChainTypeSVM:
		return NewSolanaAdapter(chain, newSolanaRPC(chain.RPCURL)), nil
	case entities.ChainTypeTron:
		client, err := dialTronClient(chain.RPCURL, chain.APIKey)
		if err != nil {
			return nil, err
		}
		return NewTronAdapter(chain, client), nil
	default:
		return nil, fmt.Errorf("%w: chain type %s", domainerrors.ErrUnsupportedChain, chain.Type)
	}
}

// Close releases cached RPC connections
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.evmClients {
		c.Close()
	}
}

func normalizeChain(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
