package nuclide

// symbols is indexed by proton count; index 0 is the free neutron.
var symbols = [...]string{
	"n", "H", "He", "Li", "Be", "B", "C", "N", "O", "F",
	"Ne", "Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar", "K",
	"Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu",
	"Zn", "Ga", "Ge", "As", "Se", "Br", "Kr", "Rb", "Sr", "Y",
	"Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd", "In",
	"Sn", "Sb", "Te", "I", "Xe", "Cs", "Ba", "La", "Ce", "Pr",
	"Nd", "Pm", "Sm", "Eu", "Gd", "Tb", "Dy", "Ho", "Er", "Tm",
	"Yb", "Lu", "Hf", "Ta", "W", "Re", "Os", "Ir", "Pt", "Au",
	"Hg", "Tl", "Pb", "Bi", "Po", "At", "Rn", "Fr", "Ra", "Ac",
	"Th", "Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf", "Es",
	"Fm", "Md", "No", "Lr", "Rf", "Db", "Sg", "Bh", "Hs", "Mt",
	"Ds", "Rg", "Cn", "Nh", "Fl", "Mc", "Lv", "Ts", "Og",
}

var atomicNumbers = func() map[string]int {
	m := make(map[string]int, len(symbols))
	for z, s := range symbols {
		m[s] = z
	}
	return m
}()

// Symbol returns the element symbol for a proton count.
func Symbol(z int) (string, bool) {
	if z < 0 || z >= len(symbols) {
		return "", false
	}
	return symbols[z], true
}

// AtomicNumber returns the proton count for an element symbol.
func AtomicNumber(symbol string) (int, bool) {
	z, ok := atomicNumbers[symbol]
	return z, ok
}
