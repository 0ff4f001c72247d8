package bytecode

// Stats contains statistics about the instructions of a Code buffer.
type Stats struct {
	// Instructions is the number of instructions.
	Instructions int

	// Short and Long count the instructions of each encoding form.
	Short int
	Long  int

	// Words is the size of the code in 32-bit words.
	Words int
}

// CodeStats decodes the code and counts its instructions.
func CodeStats(code *Code) (Stats, error) {
	instructions, err := Disassemble(code)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Instructions: len(instructions), Words: code.Len()}
	for _, ins := range instructions {
		if ins.Long {
			stats.Long++
		} else {
			stats.Short++
		}
	}
	return stats, nil
}
