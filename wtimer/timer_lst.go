// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package wtimer

// timerLst is an intrusive circular doubly-linked list of TimerLnk. It is
// used as a wheel slot (kept sorted non-decreasing by count, see
// (*Wheel).insertSorted) and as the expired/run-queue staging lists.
type timerLst struct {
	head     TimerLnk // used only as list head (only next & prev)
	wheelNo  uint8    // mostly for debugging
	wheelIdx uint16
}

// init initialises a list head (circular list).
func (lst *timerLst) init(wheelNo uint8, wheelIdx uint16) {
	lst.forceEmpty()
	lst.wheelNo = wheelNo
	lst.wheelIdx = wheelIdx
	lst.head.info.setFlags(fHead)
	lst.head.info.setWheel(wheelNo, wheelIdx)
}

// forceEmpty will completely empty the list (re-init the list head).
func (lst *timerLst) forceEmpty() {
	lst.head.next = &lst.head
	lst.head.prev = &lst.head
}

// isEmpty returns true if the list is empty.
func (lst *timerLst) isEmpty() bool {
	return lst.head.next == &lst.head
}

// front returns the first element of the list, or nil if the list is empty.
func (lst *timerLst) front() *TimerLnk {
	if lst.isEmpty() {
		return nil
	}
	return lst.head.next
}

// insert adds a new TimerLnk entry to the list.
// There's no internal locking.
func (lst *timerLst) insert(e *TimerLnk) {
	// DBG checks:
	if !isDetached(e) {
		w, idx := e.info.wheelPos()
		PANIC("timerLst insert called on an entry not detached: "+
			" t wheel %d idx %d , lst wheel %d idx %d next %p prev %p\n",
			w, idx, lst.wheelNo, lst.wheelIdx,
			e.next, e.prev)
	}

	e.prev = &lst.head
	e.next = lst.head.next
	e.next.prev = e
	lst.head.next = e

	// DBG checks:
	w, idx := e.info.wheelPos()
	if w != wheelNone || idx != wheelNoIdx {
		PANIC("timerLst insert called on an entry already on a diff. list: "+
			" t wheel %d idx %d , lst wheel %d idx %d\n",
			w, idx, lst.wheelNo, lst.wheelIdx)
	}
	e.info.setWheel(lst.wheelNo, lst.wheelIdx)
}

// append adds a TimerLnk entry at the end of the list.
// There's no internal locking.
func (lst *timerLst) append(e *TimerLnk) {
	// DBG checks:
	if !isDetached(e) {
		w, idx := e.info.wheelPos()
		PANIC("timerLst append called on an entry not detached: "+
			" t wheel %d idx %d , lst wheel %d idx %d next %p prev %p\n",
			w, idx, lst.wheelNo, lst.wheelIdx,
			e.next, e.prev)
	}

	e.prev = lst.head.prev
	e.next = &lst.head
	e.prev.next = e
	lst.head.prev = e

	// DBG checks:
	w, idx := e.info.wheelPos()
	if w != wheelNone || idx != wheelNoIdx {
		PANIC("timerLst append called on an entry already on a diff. list: "+
			" t wheel %d idx %d , lst wheel %d idx %d\n",
			w, idx, lst.wheelNo, lst.wheelIdx)
	}
	e.info.setWheel(lst.wheelNo, lst.wheelIdx)
}

// insertAfter links e immediately after prev (prev must already be on this
// list, or be &lst.head). Used by the wheel's count-sorted slot insertion
// when the walk-from-head middle case applies.
func (lst *timerLst) insertAfter(prev, e *TimerLnk) {
	if !isDetached(e) {
		PANIC("timerLst insertAfter called on an entry not detached: %p\n", e)
	}
	e.prev = prev
	e.next = prev.next
	prev.next.prev = e
	prev.next = e
	e.info.setWheel(lst.wheelNo, lst.wheelIdx)
}

// rm removes a TimerLnk entry from the list.
// There's no internal locking.
func (lst *timerLst) rm(e *TimerLnk) {
	if e == nil || e.next == nil || e.prev == nil {
		PANIC("called with nil-detached element %p\n", e)
	}
	if e.next == e || e.prev == e {
		if e == &lst.head {
			PANIC("trying to rm list head  %p\n", e)
		} else {
			PANIC("called with detached element %p:"+
				" expire %s intvl %s %s\n",
				e, e.expire, e.intvl, e.info)
		}
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	// "mark" e as detached
	e.next = e
	e.prev = e

	// DBG checks:
	w, idx := e.info.wheelPos()
	if w != lst.wheelNo || idx != lst.wheelIdx {
		PANIC("timerLst rm called on an entry from a different list: "+
			" t wheel %d idx %d , lst wheel %d idx %d\n",
			w, idx, lst.wheelNo, lst.wheelIdx)
	}
	e.info.setWheel(wheelNone, wheelNoIdx)
}

// forEach iterates on the entire list calling f(e) for each element.
// It stops immediately if  f() returns false.
// WARNING: it does not support removing the current list element
// from f(), use forEachSafeRm() for that.
func (lst *timerLst) forEach(f func(e *TimerLnk) bool) {
	cont := true
	for v := lst.head.next; v != &lst.head && cont; v = v.next {
		cont = f(v)
	}
}

// forEachSafeRm is similar to forEach(), but supports removing the
// current list elements from the callback function (e).
// It does not support removing other lists elements (e.g. e->next).
func (lst *timerLst) forEachSafeRm(f func(l *timerLst, e *TimerLnk) bool) {
	cont := true
	s := lst.head.next
	for v, nxt := s, s.next; v != &lst.head && cont; v, nxt = nxt, nxt.next {
		cont = f(lst, v)
	}
}

// detached check if the TimerLnk entry is part of a list and returns true
// if not.
func isDetached(e *TimerLnk) bool {
	return e.Detached()
}
