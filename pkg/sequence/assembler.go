package sequence

import (
	"fmt"

	"movefuzz/pkg/metadata"
	"movefuzz/pkg/mutator"
	"movefuzz/pkg/types"
)

// Config 序列合成参数
type Config struct {
	MaxProducerDepth int     `yaml:"max_producer_depth"` // 为结构体参数递归插入生产者调用的最大深度
	ReuseBias        float64 `yaml:"reuse_bias"`         // 存在匹配的前序结果时优先复用的概率
	ConsumerBias     float64 `yaml:"consumer_bias"`      // 生成时优先选择能消费已有结果的函数的概率
	MaxCommands      int     `yaml:"max_commands"`
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		MaxProducerDepth: 2,
		ReuseBias:        0.8,
		ConsumerBias:     0.6,
		MaxCommands:      16,
	}
}

// Assembler 类型导向的调用合成器
type Assembler struct {
	index    *Index
	cfg      Config
	attacker types.Address
}

// NewAssembler 创建合成器
func NewAssembler(index *Index, cfg Config, attacker types.Address) *Assembler {
	if cfg.MaxCommands <= 0 {
		cfg.MaxCommands = DefaultConfig().MaxCommands
	}
	return &Assembler{index: index, cfg: cfg, attacker: attacker}
}

// Index 查询索引
func (a *Assembler) Index() *Index { return a.index }

// Attacker 攻击者地址
func (a *Assembler) Attacker() types.Address { return a.attacker }

// Generate 生成一个新序列，包含至多n个顶层调用
func (a *Assembler) Generate(mctx *mutator.Context, n int) (*types.MoveSequence, error) {
	callable := a.callable()
	if len(callable) == 0 {
		return nil, fmt.Errorf("%w: no callable functions", ErrUnresolvable)
	}
	seq := &types.MoveSequence{}
	for k := 0; k < n && len(seq.Commands) < a.cfg.MaxCommands; k++ {
		for attempt := 0; attempt < 4; attempt++ {
			rf := a.pickFunction(mctx, seq, callable)
			if err := a.InsertCall(mctx, seq, len(seq.Commands), rf); err == nil {
				break
			}
		}
	}
	if len(seq.Commands) == 0 {
		return nil, fmt.Errorf("%w: could not synthesize any call", ErrUnresolvable)
	}
	return seq, nil
}

func (a *Assembler) callable() []metadata.ResolvedFunction {
	if a.index.Meta() == nil {
		return nil
	}
	return a.index.Meta().Callable()
}

// pickFunction 以ConsumerBias优先选择能消费已有未消费结构体结果的函数
func (a *Assembler) pickFunction(mctx *mutator.Context, seq *types.MoveSequence, callable []metadata.ResolvedFunction) metadata.ResolvedFunction {
	meta := a.index.Meta()
	if len(seq.Commands) > 0 && mctx.Rand.Float64() < a.cfg.ConsumerBias {
		if an, err := Analyze(seq, a.index); err == nil {
			var consumers []metadata.ResolvedFunction
			for _, slot := range an.Unconsumed() {
				if slot.Type.Kind != types.TagStruct || slot.Type.Struct == nil {
					continue
				}
				for _, ident := range meta.TypeGraph.Consumers(slot.Type.Struct.Identity()) {
					if fn, ok := meta.Function(ident); ok && fn.Callable() {
						consumers = append(consumers, metadata.ResolvedFunction{Ident: ident, Abi: fn})
					}
				}
			}
			if len(consumers) > 0 {
				return consumers[mctx.Rand.Intn(len(consumers))]
			}
		}
	}
	return callable[mctx.Rand.Intn(len(callable))]
}

// AppendCall 在序列末尾追加对rf的调用
func (a *Assembler) AppendCall(mctx *mutator.Context, seq *types.MoveSequence, rf metadata.ResolvedFunction) error {
	return a.InsertCall(mctx, seq, len(seq.Commands), rf)
}

// InsertCall 在位置pos插入对rf的调用（可能连同生产者调用），后续命令的结果引用整体后移
//
// 失败时seq保持不变。
func (a *Assembler) InsertCall(mctx *mutator.Context, seq *types.MoveSequence, pos int, rf metadata.ResolvedFunction) error {
	if pos < 0 || pos > len(seq.Commands) {
		return fmt.Errorf("%w: insert position %d of %d", ErrNotApplicable, pos, len(seq.Commands))
	}
	work := seq.Clone()
	prefix := &types.MoveSequence{Inputs: work.Inputs, Commands: work.Commands[:pos:pos]}
	suffix := work.Commands[pos:]

	b, err := newBuilder(a, mctx, prefix, suffix)
	if err != nil {
		return err
	}
	if _, err := b.appendCall(rf.Ident, rf.Abi, 0, nil); err != nil {
		return err
	}
	shift := len(prefix.Commands) - pos
	for i := range suffix {
		suffix[i].MapArguments(func(arg types.SequenceArgument) types.SequenceArgument {
			if cmd, ok := arg.CommandIndex(); ok && cmd >= pos {
				arg.Index = cmd + shift
			}
			return arg
		})
	}
	out := &types.MoveSequence{Inputs: prefix.Inputs, Commands: append(prefix.Commands, suffix...)}
	if len(out.Commands) > a.cfg.MaxCommands {
		return fmt.Errorf("%w: %d commands exceeds limit %d", ErrNotApplicable, len(out.Commands), a.cfg.MaxCommands)
	}
	if err := TypeCheck(out, a.index); err != nil {
		return fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	*seq = *out
	return nil
}

// builder 在序列末尾逐个追加调用，追踪可用结果与对象输入
type builder struct {
	a         *Assembler
	mctx      *mutator.Context
	seq       *types.MoveSequence
	slots     []ResultSlot
	moved     map[slotKey]bool // 已被按值消费
	laterRef  map[slotKey]bool // 被插入点之后的命令引用
	objInputs map[types.Address]int
	movedIn   map[int]bool
	laterIn   map[int]bool // 被插入点之后的命令引用的对象输入
}

func newBuilder(a *Assembler, mctx *mutator.Context, prefix *types.MoveSequence, suffix []types.Command) (*builder, error) {
	an, err := Analyze(prefix, a.index)
	if err != nil {
		return nil, err
	}
	b := &builder{
		a:         a,
		mctx:      mctx,
		seq:       prefix,
		slots:     an.Results,
		moved:     make(map[slotKey]bool),
		laterRef:  make(map[slotKey]bool),
		objInputs: make(map[types.Address]int),
		movedIn:   make(map[int]bool),
		laterIn:   make(map[int]bool),
	}
	for _, s := range an.Results {
		if s.ConsumedBy >= 0 {
			b.moved[slotKey{s.Command, s.Sub}] = true
		}
	}
	for idx := range an.movedIn {
		b.movedIn[idx] = true
	}
	for i := range suffix {
		for _, arg := range suffix[i].Arguments() {
			if cmd, ok := arg.CommandIndex(); ok {
				if slot, ok := an.Slot(arg); ok {
					b.laterRef[slotKey{slot.Command, slot.Sub}] = true
				} else {
					b.laterRef[slotKey{cmd, arg.ResultIndex()}] = true
				}
			} else if prefix.Inputs[arg.Index].Kind == types.ArgObject {
				b.laterIn[arg.Index] = true
			}
		}
	}
	for i := range prefix.Inputs {
		if obj := prefix.Inputs[i].Object; obj != nil {
			b.objInputs[obj.ID] = i
		}
	}
	return b, nil
}

// appendCall 合成一条调用并追加，返回其命令下标；hint非空时要求某个返回值能具体化为hint
func (b *builder) appendCall(ident types.FunctionIdent, fn *types.FunctionAbi, depth int, hint *types.TypeTag) (int, error) {
	tyArgs, err := b.instantiate(fn, hint)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", ident, err)
	}
	params := ExplicitParams(fn)
	args := make([]types.SequenceArgument, 0, len(params))
	for _, p := range params {
		want, err := p.Subst(tyArgs)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrTypeMismatch, ident, err)
		}
		arg, err := b.resolveParam(p, want, depth)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", ident, err)
		}
		args = append(args, arg)
	}
	call := &types.MoveCall{
		Package:       ident.Module.Address,
		Module:        ident.Module.Name,
		Function:      ident.Function,
		TypeArguments: tyArgs,
		Arguments:     args,
	}
	idx := len(b.seq.Commands)
	b.seq.Commands = append(b.seq.Commands, types.CallCommand(call))
	for j, ret := range fn.Returns {
		tag, err := ret.Subst(tyArgs)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrTypeMismatch, ident, err)
		}
		b.slots = append(b.slots, ResultSlot{
			Arg: argForm(idx, j, len(fn.Returns)), Command: idx, Sub: j,
			Type: tag, Token: ret, ConsumedBy: -1,
		})
	}
	return idx, nil
}

func (b *builder) isCopy(tag types.TypeTag) bool {
	a, known := b.a.index.Abilities(tag)
	return known && a.Has(types.AbilityCopy)
}

// resolveParam 依次尝试：前序结果、新输入、对象池、插入生产者调用
func (b *builder) resolveParam(tok types.SignatureToken, want types.TypeTag, depth int) (types.SequenceArgument, error) {
	byValue := !tok.IsReference()
	copyable := b.isCopy(want)

	var candidates []int
	for i, s := range b.slots {
		key := slotKey{s.Command, s.Sub}
		if !s.Type.Equal(want) || b.moved[key] {
			continue
		}
		if byValue && !copyable && b.laterRef[key] {
			continue
		}
		candidates = append(candidates, i)
	}
	take := func(i int) types.SequenceArgument {
		s := b.slots[i]
		if byValue && !copyable {
			b.moved[slotKey{s.Command, s.Sub}] = true
		}
		return s.Arg
	}

	r := b.mctx.Rand
	if len(candidates) > 0 && r.Float64() < b.a.cfg.ReuseBias {
		return take(candidates[r.Intn(len(candidates))]), nil
	}
	if want.IsPure() {
		return b.freshInput(want)
	}
	if arg, ok := b.poolObject(tok, want); ok {
		return arg, nil
	}
	if len(candidates) > 0 {
		return take(candidates[r.Intn(len(candidates))]), nil
	}
	if depth < b.a.cfg.MaxProducerDepth {
		if arg, ok := b.produce(want, depth); ok {
			if byValue && !copyable {
				b.moved[slotKey{b.slots[len(b.slots)-1].Command, b.slots[len(b.slots)-1].Sub}] = true
			}
			return arg, nil
		}
	}
	return types.SequenceArgument{}, fmt.Errorf("%w: no source for %s", ErrUnresolvable, want)
}

// freshInput 新建纯值输入并随机化
func (b *builder) freshInput(want types.TypeTag) (types.SequenceArgument, error) {
	v, err := types.ZeroValue(want)
	if err != nil {
		return types.SequenceArgument{}, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	if v.Kind == types.ArgAddress && b.mctx.Rand.Intn(2) == 0 {
		v.Address = b.a.attacker
	} else {
		mutator.Mutate(b.mctx, &v, false)
	}
	return b.seq.AddInput(v), nil
}

// poolObject 从对象池取匹配类型的对象；同一对象在序列中只占用一个输入槽
func (b *builder) poolObject(tok types.SignatureToken, want types.TypeTag) (types.SequenceArgument, bool) {
	meta := b.a.index.Meta()
	if meta == nil {
		return types.SequenceArgument{}, false
	}
	byValue := !tok.IsReference()
	mutable := tok.Kind == types.TokMutableReference || byValue

	var usable []*types.ObjectInfo
	for _, info := range meta.Objects(want) {
		switch {
		case byValue && info.Owner.Kind != types.OwnerAddress:
			continue
		case mutable && info.Owner.Kind == types.OwnerImmutable:
			continue
		}
		if idx, ok := b.objInputs[info.ID]; ok && (b.movedIn[idx] || byValue && b.laterIn[idx]) {
			continue
		}
		usable = append(usable, info)
	}
	if len(usable) == 0 {
		return types.SequenceArgument{}, false
	}
	info := usable[b.mctx.Rand.Intn(len(usable))]
	idx, ok := b.objInputs[info.ID]
	if !ok {
		arg := info.AsArg()
		b.seq.AddInput(types.NewObject(arg))
		idx = len(b.seq.Inputs) - 1
		b.objInputs[info.ID] = idx
	}
	if mutable {
		b.seq.Inputs[idx].Object.Mutable = true
	}
	if byValue {
		b.movedIn[idx] = true
	}
	return types.Input(idx), true
}

// produce 插入一个返回want的生产者调用，返回其对应结果
func (b *builder) produce(want types.TypeTag, depth int) (types.SequenceArgument, bool) {
	meta := b.a.index.Meta()
	if meta == nil || meta.TypeGraph == nil {
		return types.SequenceArgument{}, false
	}
	producers := meta.TypeGraph.ProducersOf(want)
	if len(producers) == 0 {
		return types.SequenceArgument{}, false
	}
	r := b.mctx.Rand
	for _, k := range r.Perm(len(producers)) {
		ident := producers[k]
		fn, ok := meta.Function(ident)
		if !ok || !fn.Callable() {
			continue
		}
		snapshot := b.save()
		if _, err := b.appendCall(ident, fn, depth+1, &want); err != nil {
			b.restore(snapshot)
			continue
		}
		for i := len(b.slots) - 1; i >= snapshot.slots; i-- {
			s := b.slots[i]
			if s.Type.Equal(want) && !b.moved[slotKey{s.Command, s.Sub}] {
				// 将匹配的结果移到末尾，方便调用方标记消费
				b.slots[i], b.slots[len(b.slots)-1] = b.slots[len(b.slots)-1], b.slots[i]
				return s.Arg, true
			}
		}
		b.restore(snapshot)
	}
	return types.SequenceArgument{}, false
}

type builderState struct {
	inputs, commands, slots int
	moved                   map[slotKey]bool
	movedIn                 map[int]bool
	objInputs               map[types.Address]int
}

func (b *builder) save() builderState {
	st := builderState{
		inputs: len(b.seq.Inputs), commands: len(b.seq.Commands), slots: len(b.slots),
		moved: make(map[slotKey]bool), movedIn: make(map[int]bool), objInputs: make(map[types.Address]int),
	}
	for k, v := range b.moved {
		st.moved[k] = v
	}
	for k, v := range b.movedIn {
		st.movedIn[k] = v
	}
	for k, v := range b.objInputs {
		st.objInputs[k] = v
	}
	return st
}

func (b *builder) restore(st builderState) {
	b.seq.Inputs = b.seq.Inputs[:st.inputs]
	b.seq.Commands = b.seq.Commands[:st.commands]
	b.slots = b.slots[:st.slots]
	b.moved, b.movedIn, b.objInputs = st.moved, st.movedIn, st.objInputs
}

// instantiate 为泛型函数选择类型实参：先与hint统一返回值，再与可用结果和对象池类型统一参数，
// 剩余的类型参数从满足能力约束的已知类型中随机选择
func (b *builder) instantiate(fn *types.FunctionAbi, hint *types.TypeTag) ([]types.TypeTag, error) {
	n := len(fn.TypeParameters)
	if n == 0 {
		return nil, nil
	}
	binding := make([]*types.TypeTag, n)
	if hint != nil {
		matched := false
		for _, ret := range fn.Returns {
			trial := cloneBinding(binding)
			if unify(ret, *hint, trial) {
				binding, matched = trial, true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: no return unifies with %s", ErrUnresolvable, *hint)
		}
	}

	r := b.mctx.Rand
	known := b.knownTypes()
	for _, p := range ExplicitParams(fn) {
		if !p.ContainsTypeParameter() || bound(binding, p) {
			continue
		}
		for _, k := range r.Perm(len(known)) {
			trial := cloneBinding(binding)
			if unify(p, known[k], trial) {
				binding = trial
				break
			}
		}
	}

	out := make([]types.TypeTag, n)
	for i, constraint := range fn.TypeParameters {
		if binding[i] == nil {
			choices := b.typesWithAbilities(constraint)
			if len(choices) == 0 {
				return nil, fmt.Errorf("%w: no type satisfies %s", ErrUnresolvable, constraint)
			}
			t := choices[r.Intn(len(choices))]
			binding[i] = &t
		}
		if a, known := b.a.index.Abilities(*binding[i]); known && !a.Has(constraint) {
			return nil, fmt.Errorf("%w: %s lacks %s", ErrUnresolvable, *binding[i], constraint)
		}
		out[i] = binding[i].Clone()
	}
	return out, nil
}

// knownTypes 当前可用结果的类型与对象池类型
func (b *builder) knownTypes() []types.TypeTag {
	var out []types.TypeTag
	for _, s := range b.slots {
		if !b.moved[slotKey{s.Command, s.Sub}] {
			out = append(out, s.Type)
		}
	}
	if meta := b.a.index.Meta(); meta != nil {
		out = append(out, meta.PoolTypes()...)
	}
	return out
}

var primitiveTags = []types.TypeTag{
	types.BoolTag, types.U8Tag, types.U16Tag, types.U32Tag, types.U64Tag,
	types.U128Tag, types.U256Tag, types.AddressTag,
}

func (b *builder) typesWithAbilities(required types.Ability) []types.TypeTag {
	meta := b.a.index.Meta()
	if meta == nil {
		if types.PrimitiveAbilities.Has(required) {
			return primitiveTags
		}
		return nil
	}
	var out []types.TypeTag
	for _, t := range meta.TypesWithAbilities(required) {
		if t.Kind != types.TagSigner {
			out = append(out, t)
		}
	}
	return out
}

func cloneBinding(binding []*types.TypeTag) []*types.TypeTag {
	out := make([]*types.TypeTag, len(binding))
	copy(out, binding)
	return out
}

// bound 令牌中出现的类型参数是否都已绑定
func bound(binding []*types.TypeTag, tok types.SignatureToken) bool {
	switch tok.Kind {
	case types.TokTypeParameter:
		return tok.Param < len(binding) && binding[tok.Param] != nil
	case types.TokReference, types.TokMutableReference, types.TokVector:
		return tok.Elem != nil && bound(binding, *tok.Elem)
	case types.TokStructInstantiation:
		for _, arg := range tok.TypeArgs {
			if !bound(binding, arg) {
				return false
			}
		}
	}
	return true
}

// unify 将令牌与具体类型统一，成功时在binding中记录新绑定
func unify(tok types.SignatureToken, tag types.TypeTag, binding []*types.TypeTag) bool {
	if !tok.ContainsTypeParameter() {
		got, err := tok.Subst(nil)
		return err == nil && got.Equal(tag)
	}
	switch tok.Kind {
	case types.TokTypeParameter:
		if tok.Param >= len(binding) {
			return false
		}
		if prev := binding[tok.Param]; prev != nil {
			return prev.Equal(tag)
		}
		t := tag.Clone()
		binding[tok.Param] = &t
		return true
	case types.TokReference, types.TokMutableReference:
		return tok.Elem != nil && unify(*tok.Elem, tag, binding)
	case types.TokVector:
		return tok.Elem != nil && tag.Kind == types.TagVector && tag.Elem != nil && unify(*tok.Elem, *tag.Elem, binding)
	case types.TokStructInstantiation:
		if tag.Kind != types.TagStruct || tag.Struct == nil || tok.Struct == nil {
			return false
		}
		st := tag.Struct
		if st.Address != tok.Struct.Address || st.Module != tok.Struct.Module || st.Name != tok.Struct.Name {
			return false
		}
		if len(st.TypeArgs) != len(tok.TypeArgs) {
			return false
		}
		for i := range tok.TypeArgs {
			if !unify(tok.TypeArgs[i], st.TypeArgs[i], binding) {
				return false
			}
		}
		return true
	}
	return false
}
