package testing

// BatchUserIDs pairs the first provided userID with every other one
// e.g. [a, b, c, d] -> [[a,b], [a,c], [a,d]]
func BatchUserIDs(userIDs []string) [][2]string {
	if len(userIDs) < 2 {
		return nil
	}

	batches := make([][2]string, 0, len(userIDs)-1)
	for i := 1; i < len(userIDs); i++ {
		batches = append(batches, [2]string{userIDs[0], userIDs[i]})
	}

	return batches
}
