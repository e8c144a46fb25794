package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"claims-engine/internal/model"
	"claims-engine/internal/pkg/apperr"
)

// Memory is an in-process Repository. A single mutex makes every call
// atomic and every read a consistent snapshot; WithTx restores the previous
// snapshot when fn fails.
type Memory struct {
	mu sync.Mutex
	st *memState
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{st: newMemState()}
}

type cellKey struct {
	region string
	cell   model.Cell
}

type memState struct {
	claims    map[string]*model.Claim
	cells     map[cellKey]string // cell -> claim id
	groups    map[string]*model.CustomGroup
	accounts  map[string]*model.Account
	txs       map[string][]*model.Transaction // account id -> log in append order
	nations   map[string]*model.Nation
	relations map[[2]string]*model.NationRelation
	wars      map[string]*model.War
	shields   map[string]*model.WarShield
	tributes  map[string]*model.WarTribute
}

func newMemState() *memState {
	return &memState{
		claims:    make(map[string]*model.Claim),
		cells:     make(map[cellKey]string),
		groups:    make(map[string]*model.CustomGroup),
		accounts:  make(map[string]*model.Account),
		txs:       make(map[string][]*model.Transaction),
		nations:   make(map[string]*model.Nation),
		relations: make(map[[2]string]*model.NationRelation),
		wars:      make(map[string]*model.War),
		shields:   make(map[string]*model.WarShield),
		tributes:  make(map[string]*model.WarTribute),
	}
}

// clone copies the maps. Stored values are never mutated in place, so
// sharing them between snapshots is safe.
func (s *memState) clone() *memState {
	out := &memState{
		claims:    maps.Clone(s.claims),
		cells:     maps.Clone(s.cells),
		groups:    maps.Clone(s.groups),
		accounts:  maps.Clone(s.accounts),
		txs:       make(map[string][]*model.Transaction, len(s.txs)),
		nations:   maps.Clone(s.nations),
		relations: maps.Clone(s.relations),
		wars:      maps.Clone(s.wars),
		shields:   maps.Clone(s.shields),
		tributes:  maps.Clone(s.tributes),
	}
	for k, v := range s.txs {
		out.txs[k] = slices.Clip(v)
	}
	return out
}

// WithTx implements Repository.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.st); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *Memory) LoadClaim(ctx context.Context, id string) (*model.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.LoadClaim(ctx, id)
}

func (m *Memory) SaveClaim(ctx context.Context, c *model.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveClaim(ctx, c)
}

func (m *Memory) DeleteClaim(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteClaim(ctx, id)
}

func (m *Memory) LoadGroup(ctx context.Context, id string) (*model.CustomGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.LoadGroup(ctx, id)
}

func (m *Memory) SaveGroup(ctx context.Context, g *model.CustomGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveGroup(ctx, g)
}

func (m *Memory) DeleteGroup(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteGroup(ctx, id)
}

func (m *Memory) ListGroups(ctx context.Context, claimID string) ([]*model.CustomGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListGroups(ctx, claimID)
}

func (m *Memory) LoadAccount(ctx context.Context, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.LoadAccount(ctx, id)
}

func (m *Memory) SaveAccount(ctx context.Context, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveAccount(ctx, a)
}

func (m *Memory) AccountHead(ctx context.Context, accountID string) (AccountHead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AccountHead(ctx, accountID)
}

func (m *Memory) AppendTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendTransaction(ctx, tx)
}

func (m *Memory) ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListTransactions(ctx, accountID, limit, offset)
}

func (m *Memory) LoadNation(ctx context.Context, id string) (*model.Nation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.LoadNation(ctx, id)
}

func (m *Memory) SaveNation(ctx context.Context, n *model.Nation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveNation(ctx, n)
}

func (m *Memory) DeleteNation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteNation(ctx, id)
}

func (m *Memory) FindNationByClaim(ctx context.Context, claimID string) (*model.Nation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.FindNationByClaim(ctx, claimID)
}

func (m *Memory) LoadRelation(ctx context.Context, a, b string) (model.RelationType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.LoadRelation(ctx, a, b)
}

func (m *Memory) SaveRelation(ctx context.Context, r *model.NationRelation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveRelation(ctx, r)
}

func (m *Memory) DeleteRelation(ctx context.Context, a, b string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteRelation(ctx, a, b)
}

func (m *Memory) ListRelations(ctx context.Context, nationID string) ([]*model.NationRelation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListRelations(ctx, nationID)
}

func (m *Memory) DeleteRelationsOf(ctx context.Context, nationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteRelationsOf(ctx, nationID)
}

func (m *Memory) LoadWar(ctx context.Context, id string) (*model.War, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.LoadWar(ctx, id)
}

func (m *Memory) SaveWar(ctx context.Context, w *model.War) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveWar(ctx, w)
}

func (m *Memory) TransitionWar(ctx context.Context, w *model.War, from model.WarState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.TransitionWar(ctx, w, from)
}

func (m *Memory) FindOpenWar(ctx context.Context, a, b string) (*model.War, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.FindOpenWar(ctx, a, b)
}

func (m *Memory) ListWarsByState(ctx context.Context, state model.WarState) ([]*model.War, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListWarsByState(ctx, state)
}

func (m *Memory) ListOpenWarsOf(ctx context.Context, nationID string) ([]*model.War, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListOpenWarsOf(ctx, nationID)
}

func (m *Memory) LoadShield(ctx context.Context, nationID string) (*model.WarShield, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.LoadShield(ctx, nationID)
}

func (m *Memory) SaveShield(ctx context.Context, s *model.WarShield) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveShield(ctx, s)
}

func (m *Memory) DeleteShield(ctx context.Context, nationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteShield(ctx, nationID)
}

func (m *Memory) LoadTribute(ctx context.Context, id string) (*model.WarTribute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.LoadTribute(ctx, id)
}

func (m *Memory) SaveTribute(ctx context.Context, t *model.WarTribute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveTribute(ctx, t)
}

func (m *Memory) ListTributes(ctx context.Context, warID string) ([]*model.WarTribute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListTributes(ctx, warID)
}

// ========== memState: unlocked implementation, also the tx view ==========

func (s *memState) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return fn(s)
}

func (s *memState) LoadClaim(_ context.Context, id string) (*model.Claim, error) {
	c, ok := s.claims[id]
	if !ok {
		return nil, apperr.NotFoundf("claim %s not found", id)
	}
	return c.Clone(), nil
}

func (s *memState) SaveClaim(_ context.Context, c *model.Claim) error {
	for _, cell := range c.Cells {
		if owner, ok := s.cells[cellKey{c.Region, cell}]; ok && owner != c.ID {
			return apperr.IllegalStatef("cell (%d,%d) in %s already claimed by %s", cell.X, cell.Z, c.Region, owner)
		}
	}
	if prev, ok := s.claims[c.ID]; ok {
		for _, cell := range prev.Cells {
			delete(s.cells, cellKey{prev.Region, cell})
		}
	}
	for _, cell := range c.Cells {
		s.cells[cellKey{c.Region, cell}] = c.ID
	}
	s.claims[c.ID] = c.Clone()
	return nil
}

func (s *memState) DeleteClaim(_ context.Context, id string) error {
	c, ok := s.claims[id]
	if !ok {
		return apperr.NotFoundf("claim %s not found", id)
	}
	for _, cell := range c.Cells {
		delete(s.cells, cellKey{c.Region, cell})
	}
	delete(s.claims, id)
	for gid, g := range s.groups {
		if g.ClaimID == id {
			delete(s.groups, gid)
		}
	}
	return nil
}

func (s *memState) LoadGroup(_ context.Context, id string) (*model.CustomGroup, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, apperr.NotFoundf("group %s not found", id)
	}
	cp := *g
	return &cp, nil
}

func (s *memState) SaveGroup(_ context.Context, g *model.CustomGroup) error {
	if _, ok := s.claims[g.ClaimID]; !ok {
		return apperr.NotFoundf("claim %s not found", g.ClaimID)
	}
	for _, other := range s.groups {
		if other.ID != g.ID && other.ClaimID == g.ClaimID && strings.EqualFold(other.Name, g.Name) {
			return apperr.IllegalStatef("group name %q already used in claim %s", g.Name, g.ClaimID)
		}
	}
	cp := *g
	s.groups[g.ID] = &cp
	return nil
}

func (s *memState) DeleteGroup(_ context.Context, id string) error {
	if _, ok := s.groups[id]; !ok {
		return apperr.NotFoundf("group %s not found", id)
	}
	delete(s.groups, id)
	return nil
}

func (s *memState) ListGroups(_ context.Context, claimID string) ([]*model.CustomGroup, error) {
	var out []*model.CustomGroup
	for _, g := range s.groups {
		if g.ClaimID == claimID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) LoadAccount(_ context.Context, id string) (*model.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, apperr.NotFoundf("account %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (s *memState) SaveAccount(_ context.Context, a *model.Account) error {
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *memState) AccountHead(_ context.Context, accountID string) (AccountHead, error) {
	if _, ok := s.accounts[accountID]; !ok {
		return AccountHead{}, apperr.NotFoundf("account %s not found", accountID)
	}
	log := s.txs[accountID]
	if len(log) == 0 {
		return AccountHead{}, nil
	}
	last := log[len(log)-1]
	return AccountHead{Balance: last.BalanceAfter, Seq: last.Seq}, nil
}

func (s *memState) AppendTransaction(_ context.Context, tx *model.Transaction) error {
	if _, ok := s.accounts[tx.AccountID]; !ok {
		return apperr.NotFoundf("account %s not found", tx.AccountID)
	}
	log := s.txs[tx.AccountID]
	var next int64 = 1
	if len(log) > 0 {
		next = log[len(log)-1].Seq + 1
	}
	if tx.Seq != next {
		return apperr.WrapStorage("append transaction", apperr.IllegalStatef("sequence %d out of order, expected %d", tx.Seq, next))
	}
	cp := *tx
	s.txs[tx.AccountID] = append(log, &cp)
	return nil
}

func (s *memState) ListTransactions(_ context.Context, accountID string, limit, offset int) ([]*model.Transaction, error) {
	log := s.txs[accountID]
	out := make([]*model.Transaction, 0, min(limit, len(log)))
	for i := len(log) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		cp := *log[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memState) LoadNation(_ context.Context, id string) (*model.Nation, error) {
	n, ok := s.nations[id]
	if !ok {
		return nil, apperr.NotFoundf("nation %s not found", id)
	}
	return n.Clone(), nil
}

func (s *memState) SaveNation(_ context.Context, n *model.Nation) error {
	for _, other := range s.nations {
		if other.ID != n.ID && strings.EqualFold(other.Name, n.Name) {
			return apperr.IllegalStatef("nation name %q already taken", n.Name)
		}
	}
	for claimID := range n.Members {
		for _, other := range s.nations {
			if other.ID == n.ID {
				continue
			}
			if _, ok := other.Members[claimID]; ok {
				return apperr.IllegalStatef("claim %s already belongs to nation %s", claimID, other.ID)
			}
		}
	}
	s.nations[n.ID] = n.Clone()
	return nil
}

func (s *memState) DeleteNation(_ context.Context, id string) error {
	if _, ok := s.nations[id]; !ok {
		return apperr.NotFoundf("nation %s not found", id)
	}
	delete(s.nations, id)
	return nil
}

func (s *memState) FindNationByClaim(_ context.Context, claimID string) (*model.Nation, error) {
	for _, n := range s.nations {
		if _, ok := n.Members[claimID]; ok {
			return n.Clone(), nil
		}
	}
	return nil, apperr.NotFoundf("claim %s has no nation", claimID)
}

func (s *memState) LoadRelation(_ context.Context, a, b string) (model.RelationType, error) {
	x, y := model.OrderedPair(a, b)
	if r, ok := s.relations[[2]string{x, y}]; ok {
		return r.Type, nil
	}
	return model.RelationNeutral, nil
}

func (s *memState) SaveRelation(_ context.Context, r *model.NationRelation) error {
	x, y := model.OrderedPair(r.NationA, r.NationB)
	cp := *r
	cp.NationA, cp.NationB = x, y
	s.relations[[2]string{x, y}] = &cp
	return nil
}

func (s *memState) DeleteRelation(_ context.Context, a, b string) error {
	x, y := model.OrderedPair(a, b)
	delete(s.relations, [2]string{x, y})
	return nil
}

func (s *memState) ListRelations(_ context.Context, nationID string) ([]*model.NationRelation, error) {
	var out []*model.NationRelation
	for key, r := range s.relations {
		if key[0] == nationID || key[1] == nationID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NationA != out[j].NationA {
			return out[i].NationA < out[j].NationA
		}
		return out[i].NationB < out[j].NationB
	})
	return out, nil
}

func (s *memState) DeleteRelationsOf(_ context.Context, nationID string) error {
	for key := range s.relations {
		if key[0] == nationID || key[1] == nationID {
			delete(s.relations, key)
		}
	}
	return nil
}

func (s *memState) LoadWar(_ context.Context, id string) (*model.War, error) {
	w, ok := s.wars[id]
	if !ok {
		return nil, apperr.NotFoundf("war %s not found", id)
	}
	return w.Clone(), nil
}

func (s *memState) SaveWar(_ context.Context, w *model.War) error {
	if w.State.Open() {
		for _, other := range s.wars {
			if other.ID != w.ID && other.State.Open() && other.Involves(w.AttackerID) && other.Involves(w.DefenderID) {
				return apperr.IllegalStatef("nations %s and %s already have open war %s", w.AttackerID, w.DefenderID, other.ID)
			}
		}
	}
	s.wars[w.ID] = w.Clone()
	return nil
}

func (s *memState) TransitionWar(ctx context.Context, w *model.War, from model.WarState) (bool, error) {
	cur, ok := s.wars[w.ID]
	if !ok {
		return false, apperr.NotFoundf("war %s not found", w.ID)
	}
	if cur.State != from {
		return false, nil
	}
	return true, s.SaveWar(ctx, w)
}

func (s *memState) FindOpenWar(_ context.Context, a, b string) (*model.War, error) {
	for _, w := range s.wars {
		if w.State.Open() && w.Involves(a) && w.Involves(b) {
			return w.Clone(), nil
		}
	}
	return nil, apperr.NotFoundf("no open war between %s and %s", a, b)
}

func (s *memState) ListWarsByState(_ context.Context, state model.WarState) ([]*model.War, error) {
	var out []*model.War
	for _, w := range s.wars {
		if w.State == state {
			out = append(out, w.Clone())
		}
	}
	sortWars(out)
	return out, nil
}

func (s *memState) ListOpenWarsOf(_ context.Context, nationID string) ([]*model.War, error) {
	var out []*model.War
	for _, w := range s.wars {
		if w.State.Open() && w.Involves(nationID) {
			out = append(out, w.Clone())
		}
	}
	sortWars(out)
	return out, nil
}

func sortWars(wars []*model.War) {
	sort.Slice(wars, func(i, j int) bool {
		if !wars[i].DeclaredAt.Equal(wars[j].DeclaredAt) {
			return wars[i].DeclaredAt.Before(wars[j].DeclaredAt)
		}
		return wars[i].ID < wars[j].ID
	})
}

func (s *memState) LoadShield(_ context.Context, nationID string) (*model.WarShield, error) {
	sh, ok := s.shields[nationID]
	if !ok {
		return nil, apperr.NotFoundf("nation %s has no shield", nationID)
	}
	cp := *sh
	return &cp, nil
}

func (s *memState) SaveShield(_ context.Context, sh *model.WarShield) error {
	cp := *sh
	s.shields[sh.NationID] = &cp
	return nil
}

func (s *memState) DeleteShield(_ context.Context, nationID string) error {
	delete(s.shields, nationID)
	return nil
}

func (s *memState) LoadTribute(_ context.Context, id string) (*model.WarTribute, error) {
	t, ok := s.tributes[id]
	if !ok {
		return nil, apperr.NotFoundf("tribute %s not found", id)
	}
	return cloneTribute(t), nil
}

func (s *memState) SaveTribute(_ context.Context, t *model.WarTribute) error {
	s.tributes[t.ID] = cloneTribute(t)
	return nil
}

func (s *memState) ListTributes(_ context.Context, warID string) ([]*model.WarTribute, error) {
	var out []*model.WarTribute
	for _, t := range s.tributes {
		if t.WarID == warID {
			out = append(out, cloneTribute(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneTribute(t *model.WarTribute) *model.WarTribute {
	cp := *t
	if t.RespondedAt != nil {
		r := *t.RespondedAt
		cp.RespondedAt = &r
	}
	return &cp
}
