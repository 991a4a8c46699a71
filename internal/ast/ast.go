// Package ast defines the structured tree produced by the structurer and
// consumed by the printer. Statements and expressions are closed sum types:
// every node carries a marker method so a switch over the interface covers
// the full set.
package ast

import "fmt"

// Node is implemented by every statement and expression.
type Node interface {
	node()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmt()
}

// Expr is an expression node.
type Expr interface {
	Node
	expr()
}

// Block is an ordered statement list.
type Block struct {
	Stmts []Stmt
}

// Assign is `lhs1, lhs2 = rhs1, rhs2` or, with Local set,
// `local lhs1, lhs2 = rhs1, rhs2`.
type Assign struct {
	PC    int
	Local bool
	LHS   []Expr
	RHS   []Expr
}

// If is a two-armed conditional; Else may be nil.
type If struct {
	PC   int
	Cond Expr
	Then *Block
	Else *Block
}

// While is a header-tested loop.
type While struct {
	PC   int
	Cond Expr
	Body *Block
}

// RepeatUntil is a tail-tested loop.
type RepeatUntil struct {
	PC   int
	Body *Block
	Cond Expr
}

// NumericFor is `for v = start, stop, step do body end`. Step may be nil
// when it is the constant 1.
type NumericFor struct {
	PC    int
	Var   Expr
	Start Expr
	Stop  Expr
	Step  Expr
	Body  *Block
}

// GenericFor is `for v1, v2 in e1, e2, e3 do body end`.
type GenericFor struct {
	PC    int
	Vars  []Expr
	Exprs []Expr
	Body  *Block
}

type Break struct{ PC int }

type Continue struct{ PC int }

// Return carries zero or more result expressions.
type Return struct {
	PC    int
	Exprs []Expr
}

// ExprStat is an expression evaluated for effect (a call).
type ExprStat struct {
	PC int
	X  Expr
}

// Goto and Label are the residue representation for control flow that the
// structurer could not reduce.
type Goto struct {
	PC   int
	Name string
}

type Label struct {
	PC   int
	Name string
}

func (*Block) node()       {}
func (*Assign) node()      {}
func (*If) node()          {}
func (*While) node()       {}
func (*RepeatUntil) node() {}
func (*NumericFor) node()  {}
func (*GenericFor) node()  {}
func (*Break) node()       {}
func (*Continue) node()    {}
func (*Return) node()      {}
func (*ExprStat) node()    {}
func (*Goto) node()        {}
func (*Label) node()       {}

func (*Block) stmt()       {}
func (*Assign) stmt()      {}
func (*If) stmt()          {}
func (*While) stmt()       {}
func (*RepeatUntil) stmt() {}
func (*NumericFor) stmt()  {}
func (*GenericFor) stmt()  {}
func (*Break) stmt()       {}
func (*Continue) stmt()    {}
func (*Return) stmt()      {}
func (*ExprStat) stmt()    {}
func (*Goto) stmt()        {}
func (*Label) stmt()       {}

// Slot is a raw register reference. Slots survive structuring and are
// replaced by Local/temporary expressions during slot recovery.
type Slot struct {
	N int
}

// Local is a named local variable.
type Local struct {
	Name string
	Slot int
}

// Upvalue is a reference into the enclosing function's frame.
type Upvalue struct {
	Name string
	N    int
}

// Global is a named global read or write target.
type Global struct {
	Name string
}

// ConstKind tags Const values.
type ConstKind int

const (
	ConstNil ConstKind = iota
	ConstTrue
	ConstFalse
	ConstInt
	ConstNum
	ConstStr
	ConstCData
)

// Const is a literal.
type Const struct {
	Kind ConstKind
	Int  int64
	Num  float64
	Str  string
}

func Nil() *Const          { return &Const{Kind: ConstNil} }
func True() *Const         { return &Const{Kind: ConstTrue} }
func False() *Const        { return &Const{Kind: ConstFalse} }
func Int(v int64) *Const   { return &Const{Kind: ConstInt, Int: v} }
func Num(v float64) *Const { return &Const{Kind: ConstNum, Num: v} }
func Str(s string) *Const  { return &Const{Kind: ConstStr, Str: s} }

// Vararg is `...`.
type Vararg struct{}

// TableField is one constructor entry; Key nil means an array item.
type TableField struct {
	Key   Expr
	Value Expr
}

// Table is a table constructor.
type Table struct {
	Fields []TableField
}

// Index is `X[Key]`.
type Index struct {
	X   Expr
	Key Expr
}

// Call is a function call; when Method is set the call prints as
// `X:Method(args)` and X is the receiver.
type Call struct {
	Fn     Expr
	Method string
	Args   []Expr
}

// Func is a nested function literal referring to a child prototype.
type Func struct {
	Proto  int // child prototype index within the dump
	Params []string
	Vararg bool
	Body   *Block
}

// BinKind enumerates binary operators, logical operators included.
type BinKind int

const (
	BinAdd BinKind = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinPow
	BinConcat
	BinEq
	BinNe
	BinLt
	BinLe
	BinGt
	BinGe
	BinAnd
	BinOr
)

var binNames = [...]string{
	"+", "-", "*", "/", "%", "^", "..",
	"==", "~=", "<", "<=", ">", ">=", "and", "or",
}

func (k BinKind) String() string { return binNames[k] }

// Bin is a binary operation.
type Bin struct {
	Kind BinKind
	L, R Expr
}

// UnKind enumerates unary operators.
type UnKind int

const (
	UnNot UnKind = iota
	UnMinus
	UnLen
)

var unNames = [...]string{"not ", "-", "#"}

func (k UnKind) String() string { return unNames[k] }

// Un is a unary operation.
type Un struct {
	Kind UnKind
	X    Expr
}

func (*Slot) node()    {}
func (*Local) node()   {}
func (*Upvalue) node() {}
func (*Global) node()  {}
func (*Const) node()   {}
func (*Vararg) node()  {}
func (*Table) node()   {}
func (*Index) node()   {}
func (*Call) node()    {}
func (*Func) node()    {}
func (*Bin) node()     {}
func (*Un) node()      {}

func (*Slot) expr()    {}
func (*Local) expr()   {}
func (*Upvalue) expr() {}
func (*Global) expr()  {}
func (*Const) expr()   {}
func (*Vararg) expr()  {}
func (*Table) expr()   {}
func (*Index) expr()   {}
func (*Call) expr()    {}
func (*Func) expr()    {}
func (*Bin) expr()     {}
func (*Un) expr()      {}

func (s *Slot) String() string { return fmt.Sprintf("slot%d", s.N) }

// Not returns the logical negation of e, simplifying comparisons and
// double negation instead of stacking `not` nodes.
func Not(e Expr) Expr {
	switch x := e.(type) {
	case *Bin:
		switch x.Kind {
		case BinEq:
			return &Bin{Kind: BinNe, L: x.L, R: x.R}
		case BinNe:
			return &Bin{Kind: BinEq, L: x.L, R: x.R}
		case BinLt:
			return &Bin{Kind: BinGe, L: x.L, R: x.R}
		case BinLe:
			return &Bin{Kind: BinGt, L: x.L, R: x.R}
		case BinGt:
			return &Bin{Kind: BinLe, L: x.L, R: x.R}
		case BinGe:
			return &Bin{Kind: BinLt, L: x.L, R: x.R}
		case BinAnd:
			if negatable(x.L) && negatable(x.R) {
				return &Bin{Kind: BinOr, L: Not(x.L), R: Not(x.R)}
			}
		case BinOr:
			if negatable(x.L) && negatable(x.R) {
				return &Bin{Kind: BinAnd, L: Not(x.L), R: Not(x.R)}
			}
		}
	case *Un:
		if x.Kind == UnNot {
			return x.X
		}
	}
	return &Un{Kind: UnNot, X: e}
}

// negatable reports whether Not(e) simplifies without wrapping e in a
// `not` node. De Morgan is applied only when both arms do, so plain
// truthiness tests keep the shorter `not (a or b)` form.
func negatable(e Expr) bool {
	switch x := e.(type) {
	case *Bin:
		switch x.Kind {
		case BinEq, BinNe, BinLt, BinLe, BinGt, BinGe:
			return true
		case BinAnd, BinOr:
			return negatable(x.L) && negatable(x.R)
		}
	case *Un:
		return x.Kind == UnNot
	}
	return false
}

// Walk visits every statement in the tree rooted at b, depth first.
func Walk(b *Block, visit func(Stmt)) {
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		visit(s)
		switch n := s.(type) {
		case *Block:
			Walk(n, visit)
		case *If:
			Walk(n.Then, visit)
			Walk(n.Else, visit)
		case *While:
			Walk(n.Body, visit)
		case *RepeatUntil:
			Walk(n.Body, visit)
		case *NumericFor:
			Walk(n.Body, visit)
		case *GenericFor:
			Walk(n.Body, visit)
		}
	}
}
